package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/plyght/clay-plyght/pkg/install"
	"github.com/plyght/clay-plyght/pkg/npmspec"
	"github.com/plyght/clay-plyght/pkg/resolve"
)

var installDev bool

var installCmd = &cobra.Command{
	Use:   "install [name[@version] ...]",
	Short: "Resolve and install dependencies into node_modules",
	Long: "With no arguments, installs every dependency already recorded in " +
		"package.json. With one or more name[@version] arguments, adds them " +
		"to the manifest first.",
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installDev, "save-dev", false, "record new arguments under devDependencies")
}

func runInstall(cmd *cobra.Command, args []string) error {
	proj, err := loadProject()
	if err != nil {
		return err
	}
	lf, err := loadLockFile()
	if err != nil {
		return err
	}

	var specs []npmspec.PackageSpec
	devRoots := map[string]bool{}
	for _, arg := range args {
		spec, err := npmspec.Parse(arg)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
		if installDev {
			devRoots[spec.Name] = true
			proj.AddDevDependency(spec.Name, spec.VersionSpec)
		} else {
			proj.AddDependency(spec.Name, spec.VersionSpec)
		}
	}
	if len(specs) == 0 {
		for name, spec := range proj.Dependencies {
			specs = append(specs, npmspec.PackageSpec{Name: name, VersionSpec: spec})
		}
		for name, spec := range proj.DevDependencies {
			specs = append(specs, npmspec.PackageSpec{Name: name, VersionSpec: spec})
			devRoots[name] = true
		}
	}
	if len(specs) == 0 {
		printf(cmd, "nothing to install\n")
		return nil
	}

	client := newRegistryClient()
	resolver := resolve.NewResolver(client)
	roots, err := resolver.Resolve(context.Background(), specs, devRoots)
	if err != nil {
		return errors.Wrap(err, "resolving dependency graph")
	}

	cs, err := newContentStore()
	if err != nil {
		return err
	}
	pc := newProjectCache()
	installer := install.NewInstaller(client, cs, pc)

	summary, err := installer.Install(context.Background(), roots, projectDir, proj, lf)
	if err != nil {
		return errors.Wrap(err, "installing packages")
	}
	if err := saveProjectState(proj, lf); err != nil {
		return err
	}

	printf(cmd, "installed %d package(s), skipped %d already present\n", len(summary.Installed), len(summary.Skipped))
	for _, name := range summary.Installed {
		printf(cmd, "  + %s\n", name)
	}
	return nil
}
