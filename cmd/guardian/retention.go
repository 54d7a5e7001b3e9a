package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nexusdb/guardian/pkg/reaper"
	"github.com/nexusdb/guardian/pkg/types"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Manage retention policies and run the reaper on demand",
}

var retentionCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a retention policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		keepLastN, _ := cmd.Flags().GetInt("keep-last")
		keepDays, _ := cmd.Flags().GetInt("keep-days")
		keepDaily, _ := cmd.Flags().GetInt("keep-daily")
		keepWeekly, _ := cmd.Flags().GetInt("keep-weekly")
		keepMonthly, _ := cmd.Flags().GetInt("keep-monthly")

		policy := &types.RetentionPolicy{
			ID:          uuid.New().String(),
			Name:        args[0],
			KeepLastN:   keepLastN,
			KeepDays:    keepDays,
			KeepDaily:   keepDaily,
			KeepWeekly:  keepWeekly,
			KeepMonthly: keepMonthly,
		}
		if policy.KeepLastN == 0 && policy.KeepDays == 0 && policy.KeepDaily == 0 && policy.KeepWeekly == 0 && policy.KeepMonthly == 0 {
			return fmt.Errorf("at least one keep-* rule must be set")
		}

		if err := a.Catalog.CreateRetentionPolicy(policy); err != nil {
			return fmt.Errorf("create retention policy: %w", err)
		}
		fmt.Printf("Retention policy created: %s (%s)\n", policy.Name, policy.ID)
		return nil
	},
}

var retentionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retention policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		policies, err := a.Catalog.ListRetentionPolicies()
		if err != nil {
			return fmt.Errorf("list retention policies: %w", err)
		}
		for _, p := range policies {
			fmt.Printf("%s\t%s\tlast_n=%d\tdays=%d\tdaily=%d\tweekly=%d\tmonthly=%d\n",
				p.ID, p.Name, p.KeepLastN, p.KeepDays, p.KeepDaily, p.KeepWeekly, p.KeepMonthly)
		}
		return nil
	},
}

var retentionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one retention sweep immediately, rather than waiting for the daemon's hourly tick",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		reaper.NewReaper(a.Catalog).Sweep()
		fmt.Println("Retention sweep complete")
		return nil
	},
}

func init() {
	retentionCreateCmd.Flags().Int("keep-last", 0, "Keep the N most recent backups")
	retentionCreateCmd.Flags().Int("keep-days", 0, "Keep backups created within the last N days")
	retentionCreateCmd.Flags().Int("keep-daily", 0, "Keep one backup per day for the most recent N days")
	retentionCreateCmd.Flags().Int("keep-weekly", 0, "Keep one backup per ISO week for the most recent N weeks")
	retentionCreateCmd.Flags().Int("keep-monthly", 0, "Keep one backup per month for the most recent N months")

	retentionCmd.AddCommand(retentionCreateCmd)
	retentionCmd.AddCommand(retentionListCmd)
	retentionCmd.AddCommand(retentionRunCmd)
}
