package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nexusdb/guardian/pkg/types"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and restore backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Run a backup immediately, outside the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		serverID, _ := cmd.Flags().GetString("server")
		database, _ := cmd.Flags().GetString("database")
		kind, _ := cmd.Flags().GetString("kind")

		server, err := a.Catalog.GetServer(serverID)
		if err != nil {
			return fmt.Errorf("lookup server %s: %w", serverID, err)
		}

		backup := &types.Backup{
			ID:              uuid.New().String(),
			ServerID:        server.ID,
			Database:        database,
			Family:          server.Family,
			Kind:            types.BackupKind(kind),
			Status:          types.BackupPending,
			Compressed:      true,
			CompressionAlgo: types.CompressionGzip,
			Encrypted:       true,
			CreatedAt:       time.Now(),
		}
		if err := a.Catalog.InsertBackup(backup); err != nil {
			return fmt.Errorf("insert backup: %w", err)
		}

		fmt.Printf("Running backup %s for %s/%s...\n", backup.ID, server.Name, database)
		if err := a.pipeline().RunBackup(ctx, backup.ID); err != nil {
			return fmt.Errorf("run backup: %w", err)
		}

		result, err := a.Catalog.GetBackup(backup.ID)
		if err != nil {
			return fmt.Errorf("reload backup: %w", err)
		}
		fmt.Printf("Backup %s finished: status=%s size=%d checksum=%s\n", result.ID, result.Status, result.Size, result.Checksum)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		status, _ := cmd.Flags().GetString("status")
		backups, err := a.Catalog.ListBackupsByStatus(types.BackupStatus(status))
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}
		for _, b := range backups {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\t%d\t%s\n", b.ID, b.ServerID, b.Database, b.Kind, b.Status, b.Size, b.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore BACKUP_ID",
	Short: "Restore a backup onto a target server/database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		targetServer, _ := cmd.Flags().GetString("target-server")
		targetDatabase, _ := cmd.Flags().GetString("target-database")

		backupID := args[0]
		fmt.Printf("Restoring backup %s onto %s/%s...\n", backupID, targetServer, targetDatabase)
		if err := a.pipeline().RunRestore(ctx, backupID, targetServer, targetDatabase, nil); err != nil {
			return fmt.Errorf("run restore: %w", err)
		}
		fmt.Println("Restore complete")
		return nil
	},
}

func init() {
	backupCreateCmd.Flags().String("server", "", "Server ID to back up (required)")
	backupCreateCmd.Flags().String("database", "", "Database name (required)")
	backupCreateCmd.Flags().String("kind", string(types.BackupFull), "Backup kind: full, incremental, differential")
	_ = backupCreateCmd.MarkFlagRequired("server")
	_ = backupCreateCmd.MarkFlagRequired("database")

	backupListCmd.Flags().String("status", string(types.BackupCompleted), "Status to filter on: pending, in_progress, completed, failed, cancelling, cancelled, deleted")

	backupRestoreCmd.Flags().String("target-server", "", "Server ID to restore onto (required)")
	backupRestoreCmd.Flags().String("target-database", "", "Database name to restore into (required)")
	_ = backupRestoreCmd.MarkFlagRequired("target-server")
	_ = backupRestoreCmd.MarkFlagRequired("target-database")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}
