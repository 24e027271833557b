package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/plyght/clay-plyght/pkg/install"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check that node_modules agrees with the lock file",
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	lf, err := loadLockFile()
	if err != nil {
		return err
	}
	issues, err := install.Audit(projectDir, lf)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		printf(cmd, "node_modules matches the lock file\n")
		return nil
	}
	for _, issue := range issues {
		printf(cmd, "%s: %s\n", issue.Package, issue.Reason)
	}
	cmd.SilenceUsage = true
	return errors.Errorf("%d inconsistencies found", len(issues))
}
