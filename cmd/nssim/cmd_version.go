package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the nssim build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{Version: version, Commit: commit, Date: date}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(info); err != nil {
					return fmt.Errorf("encoding version: %w", err)
				}
				return nil
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "nssim %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
			return err
		},
	}
}
