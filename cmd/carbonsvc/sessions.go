package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Maintain stored sessions",
}

var cleanupOlderThan time.Duration

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "End idle sessions and drop records without state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		olderThan := cleanupOlderThan
		if olderThan <= 0 {
			olderThan = a.cfg.SessionMaxIdle
		}

		res, err := a.sessions.Cleanup(cmd.Context(), olderThan)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	sessionsCleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "idle age to expire (default CARBONSVC_SESSION_MAX_IDLE)")
	sessionsCmd.AddCommand(sessionsCleanupCmd)
}
