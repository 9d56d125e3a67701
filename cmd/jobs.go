package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/rally/internal/simulate"
)

func init() {
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().Int("users", simulate.DefaultUsers, "Number of distinct simulated users")
	simulateCmd.Flags().Int("interactions", simulate.DefaultInteractions, "Number of interactions to record")
	simulateCmd.Flags().Int("workers", simulate.DefaultWorkers, "Concurrent recorders")
	simulateCmd.Flags().Int64("seed", 0, "Generator seed (0 picks a random one)")
	simulateCmd.Flags().Duration("span", simulate.DefaultSpan, "How far back generated timestamps reach")
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Archive and delete stale low-weight interactions once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeStore, err := newService(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		report, err := svc.Consolidate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "selected=%d archived=%d already_archived=%d errors=%d deleted=%d pruned=%d\n",
			report.Selected, report.Archived, report.AlreadyArchived, report.ArchiveErrors, report.Deleted, report.Pruned)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh-profiles",
	Short: "Recompute the profiles of recently active users once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeStore, err := newService(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		report, err := svc.RefreshProfiles(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "candidates=%d refreshed=%d failed=%d\n",
			report.Candidates, report.Refreshed, report.Failed)
		return nil
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Record generated community traffic and print the top of the leaderboard",
	Args:  cobra.NoArgs,
	RunE:  runSimulate,
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	var sc simulate.Config
	sc.Users, _ = cmd.Flags().GetInt("users")
	sc.Interactions, _ = cmd.Flags().GetInt("interactions")
	sc.Workers, _ = cmd.Flags().GetInt("workers")
	sc.Seed, _ = cmd.Flags().GetInt64("seed")
	sc.Span, _ = cmd.Flags().GetDuration("span")

	ctx := cmd.Context()
	svc, closeStore, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	st, err := simulate.Run(ctx, svc, sc)
	// Stop drains the standing queue before the leaderboard is read.
	svc.Stop()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "generated=%d recorded=%d failed=%d took=%s\n", st.Generated, st.Recorded, st.Failed, st.Duration)
	for _, e := range svc.TopN(ctx, 10) {
		fmt.Fprintf(out, "%3d  %-36s %-20s %8d\n", e.Rank, e.UserID, e.Username, e.TotalPoints)
	}
	return nil
}
