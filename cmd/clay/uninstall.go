package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/plyght/clay-plyght/pkg/install"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <name>",
	Short: "Remove a dependency and any of its dependencies nothing else needs",
	Args:  cobra.ExactArgs(1),
	RunE:  runUninstall,
}

func runUninstall(cmd *cobra.Command, args []string) error {
	proj, err := loadProject()
	if err != nil {
		return err
	}
	lf, err := loadLockFile()
	if err != nil {
		return err
	}

	cs, err := newContentStore()
	if err != nil {
		return err
	}
	pc := newProjectCache()
	installer := install.NewInstaller(newRegistryClient(), cs, pc)

	if err := installer.Uninstall(args[0], projectDir, proj, lf); err != nil {
		return errors.Wrapf(err, "uninstalling %s", args[0])
	}
	if err := saveProjectState(proj, lf); err != nil {
		return err
	}
	printf(cmd, "removed %s\n", args[0])
	return nil
}
