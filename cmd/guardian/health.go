package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusdb/guardian/pkg/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe server reachability",
}

var healthCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one health probe round against every active server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		prober := health.NewProber(a.Catalog, a.Secrets, a.Bus, a.Notifier)
		servers, err := prober.ProbeOnce(ctx)
		if err != nil {
			return fmt.Errorf("probe servers: %w", err)
		}
		for _, s := range servers {
			fmt.Printf("%s\t%s\t%s\n", s.ID, s.Name, s.Health)
		}
		return nil
	},
}

func init() {
	healthCmd.AddCommand(healthCheckCmd)
}
