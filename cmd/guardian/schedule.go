package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nexusdb/guardian/pkg/types"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage cron-driven backup schedules",
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a backup schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		serverID, _ := cmd.Flags().GetString("server")
		database, _ := cmd.Flags().GetString("database")
		cronExpr, _ := cmd.Flags().GetString("cron")
		timezone, _ := cmd.Flags().GetString("timezone")
		kind, _ := cmd.Flags().GetString("kind")
		retentionPolicyID, _ := cmd.Flags().GetString("retention-policy")
		notifySuccess, _ := cmd.Flags().GetBool("notify-success")
		notifyFailure, _ := cmd.Flags().GetBool("notify-failure")

		if _, err := a.Catalog.GetServer(serverID); err != nil {
			return fmt.Errorf("lookup server %s: %w", serverID, err)
		}

		sched := &types.Schedule{
			ID:                uuid.New().String(),
			Name:              args[0],
			Cron:              cronExpr,
			Timezone:          timezone,
			ServerID:          serverID,
			Database:          database,
			Kind:              types.BackupKind(kind),
			RetentionPolicyID: retentionPolicyID,
			Enabled:           true,
			NotifyOnSuccess:   notifySuccess,
			NotifyOnFailure:   notifyFailure,
			CreatedAt:         time.Now(),
		}

		if err := a.Catalog.CreateSchedule(sched); err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}
		fmt.Printf("Schedule created: %s (%s)\n", sched.Name, sched.ID)
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		schedules, err := a.Catalog.ListSchedules()
		if err != nil {
			return fmt.Errorf("list schedules: %w", err)
		}
		for _, s := range schedules {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\tenabled=%t\tnext_run=%s\n",
				s.ID, s.Name, s.Cron, s.ServerID, s.Database, s.Enabled, s.NextRun.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	scheduleCreateCmd.Flags().String("server", "", "Server ID to back up (required)")
	scheduleCreateCmd.Flags().String("database", "", "Database name (required)")
	scheduleCreateCmd.Flags().String("cron", "", "Cron expression, 5 or 6 fields (required)")
	scheduleCreateCmd.Flags().String("timezone", "UTC", "IANA timezone the cron expression is evaluated in")
	scheduleCreateCmd.Flags().String("kind", string(types.BackupFull), "Backup kind: full, incremental, differential")
	scheduleCreateCmd.Flags().String("retention-policy", "", "Retention policy ID to apply (empty disables reaping)")
	scheduleCreateCmd.Flags().Bool("notify-success", false, "Store notify-on-success on the schedule (the pipeline notifies every backup outcome regardless)")
	scheduleCreateCmd.Flags().Bool("notify-failure", true, "Store notify-on-failure on the schedule (the pipeline notifies every backup outcome regardless)")
	_ = scheduleCreateCmd.MarkFlagRequired("server")
	_ = scheduleCreateCmd.MarkFlagRequired("database")
	_ = scheduleCreateCmd.MarkFlagRequired("cron")

	scheduleCmd.AddCommand(scheduleCreateCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
}
