// Package install materializes a resolved package graph into a project's
// node_modules tree: fetching tarballs (through the project cache, falling
// back to the registry), extracting them, wiring up executables, and
// keeping the project manifest and lock file in sync.
package install

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/plyght/clay-plyght/internal/archive"
	"github.com/plyght/clay-plyght/pkg/concurrency"
	"github.com/plyght/clay-plyght/pkg/manifest"
	"github.com/plyght/clay-plyght/pkg/registry"
	"github.com/plyght/clay-plyght/pkg/resolve"
	"github.com/plyght/clay-plyght/pkg/store"
)

// Installer wires together the registry client and the two local caches to
// materialize a resolved graph into a project directory.
type Installer struct {
	Client       *registry.Client
	ContentStore *store.ContentStore
	ProjectCache *store.ProjectCache
	Limiter      *concurrency.Limiter
	LockGuard    *concurrency.Guard

	// CopyToContentStore, when true, mirrors every fetched tarball into the
	// Content Store in addition to the Project Cache.
	CopyToContentStore bool
}

// NewInstaller wires an Installer from its three collaborators, with
// installs bounded by concurrency.DefaultFetchLimit.
func NewInstaller(client *registry.Client, cs *store.ContentStore, pc *store.ProjectCache) *Installer {
	return &Installer{
		Client:             client,
		ContentStore:       cs,
		ProjectCache:       pc,
		Limiter:            concurrency.NewLimiter(concurrency.DefaultFetchLimit),
		LockGuard:          &concurrency.Guard{},
		CopyToContentStore: true,
	}
}

// Summary reports what an Install call did.
type Summary struct {
	Installed []string
	Skipped   []string
}

// Install materializes roots into projectDir/node_modules, updating the
// project manifest (for roots only) and the lock file (for every node).
// A root with Dev set is recorded under devDependencies, any other root
// under dependencies. The resolver sets Dev only on roots, so packages
// pulled in transitively are never marked dev.
func (in *Installer) Install(ctx context.Context, roots []*resolve.ResolvedNode, projectDir string, proj *manifest.Project, lf *manifest.LockFile) (Summary, error) {
	var summary Summary

	var survivors []*resolve.ResolvedNode
	for _, root := range roots {
		dir := filepath.Join(projectDir, "node_modules", root.Name)
		if dirExists(dir) {
			summary.Skipped = append(summary.Skipped, root.Name)
			continue
		}
		survivors = append(survivors, root)
	}
	if len(survivors) == 0 {
		return summary, nil
	}

	for _, root := range survivors {
		if err := in.installTree(ctx, root, projectDir, manifest.RootRequester, lf); err != nil {
			return summary, err
		}
		if proj != nil {
			if root.Dev {
				proj.AddDevDependency(root.Name, root.Version)
			} else {
				proj.AddDependency(root.Name, root.Version)
			}
		}
		summary.Installed = append(summary.Installed, root.Name)
	}
	return summary, nil
}

// installTree installs node's dependencies (post-order, concurrently) and
// then node itself, recording requester as the lock's required_by entry
// for node.
func (in *Installer) installTree(ctx context.Context, node *resolve.ResolvedNode, projectDir, requester string, lf *manifest.LockFile) error {
	if node.IsCircular() {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, child := range node.Children {
		child := child
		g.Go(func() error {
			return in.Limiter.Run(ctx, func() error {
				return in.installTree(ctx, child, projectDir, node.Name, lf)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return in.installNode(ctx, node, projectDir, requester, lf)
}

// installNode materializes a single package: fetch, extract, link
// executables, and record it in the lock file. If the package directory
// already exists, it only records requester in the lock file.
func (in *Installer) installNode(ctx context.Context, node *resolve.ResolvedNode, projectDir, requester string, lf *manifest.LockFile) error {
	dir := filepath.Join(projectDir, "node_modules", node.Name)
	if dirExists(dir) {
		return in.recordLockEntry(node, requester, lf)
	}

	tarball, err := in.fetch(ctx, node)
	if err != nil {
		return err
	}

	if err := extractTarball(tarball, dir); err != nil {
		return err
	}

	if in.CopyToContentStore && in.ContentStore != nil {
		if _, err := in.ContentStore.Store(node.Name, node.Version, tarball, node.Info.Dist.Shasum); err != nil {
			return errors.Wrapf(err, "mirroring %s@%s into content store", node.Name, node.Version)
		}
	}

	if err := in.installExecutables(projectDir, node.Name, dir); err != nil {
		return err
	}

	return in.recordLockEntry(node, requester, lf)
}

// fetch returns node's tarball bytes, trying the Project Cache before the
// network and repopulating the cache on a network fetch.
func (in *Installer) fetch(ctx context.Context, node *resolve.ResolvedNode) ([]byte, error) {
	if in.ProjectCache != nil {
		if data, ok, err := in.ProjectCache.Get(node.Name, node.Version, node.Info.Dist.Shasum); err != nil {
			return nil, err
		} else if ok {
			return data, nil
		}
	}

	var buf bytes.Buffer
	if err := in.Client.Download(ctx, node.Name, node.Version, node.Info.Dist, &buf); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	if in.ProjectCache != nil {
		if err := in.ProjectCache.Put(node.Name, node.Version, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func extractTarball(tarball []byte, dir string) error {
	gr, err := archive.DecompressGzip(bytes.NewReader(tarball))
	if err != nil {
		return err
	}
	defer gr.Close()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	fs := osfs.New(dir)
	return archive.ExtractTo(tar.NewReader(gr), fs)
}

// recordLockEntry updates lf under the process-wide exclusive-write guard
// so concurrent installer tasks never lose an update to the same or a
// different entry.
func (in *Installer) recordLockEntry(node *resolve.ResolvedNode, requester string, lf *manifest.LockFile) error {
	entry := manifest.LockEntry{
		Version:      node.Version,
		ResolvedURL:  node.Info.Dist.Tarball,
		Integrity:    node.Info.Dist.Shasum,
		Dependencies: node.Info.Dependencies,
	}
	if in.LockGuard != nil {
		in.LockGuard.Write(func() { lf.AddPackage(node.Name, entry, requester) })
	} else {
		lf.AddPackage(node.Name, entry, requester)
	}
	return nil
}

// binEntry is the subset of a package's manifest the installer needs to
// wire up node_modules/.bin.
type binEntry struct {
	Name string          `json:"name"`
	Bin  json.RawMessage `json:"bin"`
}

// installExecutables reads pkgDir's package.json, resolves its bin field
// (string or map form), and wires each entry into node_modules/.bin.
func (in *Installer) installExecutables(projectDir, name, pkgDir string) error {
	data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading package.json for %s", name)
	}
	var be binEntry
	if err := json.Unmarshal(data, &be); err != nil {
		return nil
	}
	bins, err := parseBinField(be, name)
	if err != nil || len(bins) == 0 {
		return err
	}

	binDir := filepath.Join(projectDir, "node_modules", ".bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", binDir)
	}
	for cmd, rel := range bins {
		target := filepath.Join(pkgDir, rel)
		if err := linkExecutable(target, filepath.Join(binDir, cmd)); err != nil {
			return errors.Wrapf(err, "installing executable %s", cmd)
		}
	}
	return nil
}

func parseBinField(be binEntry, name string) (map[string]string, error) {
	if len(be.Bin) == 0 {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(be.Bin, &asString); err == nil {
		return map[string]string{name: asString}, nil
	}
	var asMap map[string]string
	if err := json.Unmarshal(be.Bin, &asMap); err == nil {
		return asMap, nil
	}
	return nil, nil
}

// linkExecutable wires target into the node_modules/.bin directory at
// linkPath: a mode-extended symlink on POSIX, a small shim script on
// Windows, where symlinks require elevated privileges by default.
func linkExecutable(target, linkPath string) error {
	os.Remove(linkPath)
	if runtime.GOOS == "windows" {
		return writeWindowsShim(target, linkPath)
	}
	if err := os.Symlink(target, linkPath); err != nil {
		return err
	}
	info, err := os.Lstat(target)
	if err != nil {
		return nil
	}
	return os.Chmod(target, info.Mode()|0o111)
}

func writeWindowsShim(target, linkPath string) error {
	shim := "@echo off\r\nnode \"" + target + "\" %*\r\n"
	return os.WriteFile(linkPath+".cmd", []byte(shim), 0o755)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
