package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nexusdb/guardian/pkg/executor"
	"github.com/nexusdb/guardian/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a Server, Schedule or RetentionPolicy from a YAML file",
	Long: `Apply a declarative Guardian resource file.

Examples:
  # Register a server
  guardian apply -f server.yaml

  # Create a schedule bound to an existing server
  guardian apply -f schedule.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// guardianResource is a Kind-tagged declarative document: apiVersion/kind/
// metadata plus a free-form spec map, applied by name against the local
// catalog instead of a remote manager client. RetentionPolicy documents are
// create-only: an existing policy of the same name is left unchanged.
type guardianResource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   resourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type resourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var resource guardianResource
	if err := yaml.Unmarshal(data, &resource); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}

	a, err := buildApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	switch resource.Kind {
	case "Server":
		return applyServer(a, &resource)
	case "Schedule":
		return applySchedule(a, &resource)
	case "RetentionPolicy":
		return applyRetentionPolicy(a, &resource)
	default:
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func applyServer(a *app, resource *guardianResource) error {
	name := resource.Metadata.Name

	existing, _ := findServerByName(a, name)

	var encryptedCreds []byte
	creds := executor.Credentials{
		Username: getString(resource.Spec, "username", ""),
		Password: getString(resource.Spec, "password", ""),
		SSHKey:   getString(resource.Spec, "sshKey", ""),
	}
	if creds != (executor.Credentials{}) {
		plaintext, err := json.Marshal(creds)
		if err != nil {
			return fmt.Errorf("marshal credentials: %w", err)
		}
		encryptedCreds, err = a.Secrets.Encrypt(plaintext)
		if err != nil {
			return fmt.Errorf("encrypt credentials: %w", err)
		}
	}

	if existing != nil {
		fmt.Printf("Updating server: %s\n", name)
		existing.Transport = types.TransportKind(getString(resource.Spec, "transport", string(existing.Transport)))
		existing.Family = types.DatabaseFamily(getString(resource.Spec, "family", string(existing.Family)))
		existing.Host = getString(resource.Spec, "host", existing.Host)
		existing.Port = getInt(resource.Spec, "port", existing.Port)
		existing.Namespace = getString(resource.Spec, "namespace", existing.Namespace)
		existing.ContainerName = getString(resource.Spec, "container", existing.ContainerName)
		existing.Environment = getString(resource.Spec, "environment", existing.Environment)
		if len(encryptedCreds) > 0 {
			existing.EncryptedCreds = encryptedCreds
		}
		if err := a.Catalog.UpdateServer(existing); err != nil {
			return fmt.Errorf("update server: %w", err)
		}
		fmt.Printf("Server updated: %s (%s)\n", existing.Name, existing.ID)
		return nil
	}

	server := &types.Server{
		ID:             uuid.New().String(),
		Name:           name,
		Transport:      types.TransportKind(getString(resource.Spec, "transport", "shell")),
		Family:         types.DatabaseFamily(getString(resource.Spec, "family", "")),
		Host:           getString(resource.Spec, "host", ""),
		Port:           getInt(resource.Spec, "port", 0),
		Namespace:      getString(resource.Spec, "namespace", ""),
		ContainerName:  getString(resource.Spec, "container", ""),
		EncryptedCreds: encryptedCreds,
		Environment:    getString(resource.Spec, "environment", "production"),
		Health:         types.HealthUnknown,
		Active:         true,
		CreatedAt:      time.Now(),
	}
	if server.Family == "" {
		return fmt.Errorf("server %s: spec.family is required", name)
	}
	if err := a.Catalog.CreateServer(server); err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	fmt.Printf("Server created: %s (%s)\n", server.Name, server.ID)
	return nil
}

func applySchedule(a *app, resource *guardianResource) error {
	name := resource.Metadata.Name

	serverName := getString(resource.Spec, "server", "")
	if serverName == "" {
		return fmt.Errorf("schedule %s: spec.server is required", name)
	}
	server, err := findServerByName(a, serverName)
	if err != nil {
		return fmt.Errorf("lookup server %s: %w", serverName, err)
	}
	if server == nil {
		return fmt.Errorf("schedule %s: server %s not found", name, serverName)
	}

	retentionPolicyID := ""
	if policyName := getString(resource.Spec, "retentionPolicy", ""); policyName != "" {
		policy, err := findRetentionPolicyByName(a, policyName)
		if err != nil {
			return fmt.Errorf("lookup retention policy %s: %w", policyName, err)
		}
		if policy == nil {
			return fmt.Errorf("schedule %s: retention policy %s not found", name, policyName)
		}
		retentionPolicyID = policy.ID
	}

	existing, _ := findScheduleByName(a, name)
	if existing != nil {
		fmt.Printf("Updating schedule: %s\n", name)
		existing.Cron = getString(resource.Spec, "cron", existing.Cron)
		existing.Timezone = getString(resource.Spec, "timezone", existing.Timezone)
		existing.ServerID = server.ID
		existing.Database = getString(resource.Spec, "database", existing.Database)
		existing.Kind = types.BackupKind(getString(resource.Spec, "kind", string(existing.Kind)))
		existing.RetentionPolicyID = retentionPolicyID
		if err := a.Catalog.UpdateSchedule(existing); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		fmt.Printf("Schedule updated: %s (%s)\n", existing.Name, existing.ID)
		return nil
	}

	sched := &types.Schedule{
		ID:                uuid.New().String(),
		Name:              name,
		Cron:              getString(resource.Spec, "cron", ""),
		Timezone:          getString(resource.Spec, "timezone", "UTC"),
		ServerID:          server.ID,
		Database:          getString(resource.Spec, "database", ""),
		Kind:              types.BackupKind(getString(resource.Spec, "kind", string(types.BackupFull))),
		RetentionPolicyID: retentionPolicyID,
		Enabled:           true,
		NotifyOnFailure:   true,
		CreatedAt:         time.Now(),
	}
	if sched.Cron == "" || sched.Database == "" {
		return fmt.Errorf("schedule %s: spec.cron and spec.database are required", name)
	}
	if err := a.Catalog.CreateSchedule(sched); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	fmt.Printf("Schedule created: %s (%s)\n", sched.Name, sched.ID)
	return nil
}

func applyRetentionPolicy(a *app, resource *guardianResource) error {
	name := resource.Metadata.Name

	existing, _ := findRetentionPolicyByName(a, name)
	if existing != nil {
		fmt.Printf("Retention policy already exists: %s (skipping)\n", name)
		return nil
	}

	policy := &types.RetentionPolicy{
		ID:          uuid.New().String(),
		Name:        name,
		KeepLastN:   getInt(resource.Spec, "keepLastN", 0),
		KeepDays:    getInt(resource.Spec, "keepDays", 0),
		KeepDaily:   getInt(resource.Spec, "keepDaily", 0),
		KeepWeekly:  getInt(resource.Spec, "keepWeekly", 0),
		KeepMonthly: getInt(resource.Spec, "keepMonthly", 0),
	}
	if err := a.Catalog.CreateRetentionPolicy(policy); err != nil {
		return fmt.Errorf("create retention policy: %w", err)
	}
	fmt.Printf("Retention policy created: %s (%s)\n", policy.Name, policy.ID)
	return nil
}

func findServerByName(a *app, name string) (*types.Server, error) {
	servers, err := a.Catalog.ListServers()
	if err != nil {
		return nil, err
	}
	for _, s := range servers {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, nil
}

func findScheduleByName(a *app, name string) (*types.Schedule, error) {
	schedules, err := a.Catalog.ListSchedules()
	if err != nil {
		return nil, err
	}
	for _, s := range schedules {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, nil
}

func findRetentionPolicyByName(a *app, name string) (*types.RetentionPolicy, error) {
	policies, err := a.Catalog.ListRetentionPolicies()
	if err != nil {
		return nil, err
	}
	for _, p := range policies {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getInt(m map[string]interface{}, key string, defaultValue int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultValue
}
