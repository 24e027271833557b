// Command clay is a small npm-compatible package manager: it resolves a
// project's dependency graph against the npm registry, materializes it
// into node_modules, and keeps a project manifest and lock file in sync.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/plyght/clay-plyght/pkg/manifest"
	"github.com/plyght/clay-plyght/pkg/registry"
	"github.com/plyght/clay-plyght/pkg/store"
)

var projectDir string
var lockEncodingFlag string

var rootCmd = &cobra.Command{
	Use:   "clay",
	Short: "A minimal npm-compatible package manager",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "dir", ".", "project directory")
	rootCmd.PersistentFlags().StringVar(&lockEncodingFlag, "lock-format", "toml", "lock file encoding: toml or json")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(storeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func lockEncoding() manifest.Encoding {
	if lockEncodingFlag == "json" {
		return manifest.EncodingJSON
	}
	return manifest.EncodingTOML
}

func manifestPath() string {
	return filepath.Join(projectDir, "package.json")
}

func lockPath() string {
	return filepath.Join(projectDir, manifest.DefaultLockFileName(lockEncoding()))
}

func loadProject() (*manifest.Project, error) {
	proj, err := manifest.LoadProject(manifestPath())
	if err != nil {
		return nil, errors.Wrap(err, "loading package.json")
	}
	return proj, nil
}

func loadLockFile() (*manifest.LockFile, error) {
	lf, err := manifest.LoadLockFile(lockPath())
	if err != nil {
		return nil, errors.Wrap(err, "loading lock file")
	}
	return lf, nil
}

func saveProjectState(proj *manifest.Project, lf *manifest.LockFile) error {
	if err := proj.Save(manifestPath()); err != nil {
		return errors.Wrap(err, "saving package.json")
	}
	if err := lf.Save(lockPath(), lockEncoding()); err != nil {
		return errors.Wrap(err, "saving lock file")
	}
	return nil
}

func clayHome() string {
	if h := os.Getenv("CLAY_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".clay")
	}
	return filepath.Join(home, ".clay")
}

func newContentStore() (*store.ContentStore, error) {
	cs := store.NewContentStore(filepath.Join(clayHome(), "content-store"))
	if err := cs.Initialize(); err != nil {
		return nil, errors.Wrap(err, "initializing content store")
	}
	return cs, nil
}

func newProjectCache() *store.ProjectCache {
	return store.NewProjectCache(filepath.Join(clayHome(), "cache"))
}

func newRegistryClient() *registry.Client {
	return registry.NewClient()
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
