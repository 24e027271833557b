package main

import (
	"github.com/spf13/cobra"

	"github.com/plyght/clay-plyght/pkg/install"
)

var peersMissingOnly bool

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Report the state of every installed package's peer dependencies",
	RunE:  runPeers,
}

func init() {
	peersCmd.Flags().BoolVar(&peersMissingOnly, "missing", false, "only report peers that aren't installed at all")
}

func runPeers(cmd *cobra.Command, args []string) error {
	statuses, err := install.ScanPeers(projectDir)
	if err != nil {
		return err
	}
	if peersMissingOnly {
		statuses = install.Missing(statuses)
	}
	if len(statuses) == 0 {
		printf(cmd, "no peer dependency issues found\n")
		return nil
	}
	for _, s := range statuses {
		switch {
		case s.Installed == "":
			printf(cmd, "%s requires %s@%s, not installed\n", s.Package, s.Peer, s.DeclaredSpec)
		case !s.Satisfied:
			printf(cmd, "%s requires %s@%s, found %s\n", s.Package, s.Peer, s.DeclaredSpec, s.Installed)
		default:
			printf(cmd, "%s requires %s@%s, satisfied by %s\n", s.Package, s.Peer, s.DeclaredSpec, s.Installed)
		}
	}
	return nil
}
