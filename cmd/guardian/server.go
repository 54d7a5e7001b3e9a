package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nexusdb/guardian/pkg/executor"
	"github.com/nexusdb/guardian/pkg/types"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage registered database servers",
}

var serverAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a database server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		family, _ := cmd.Flags().GetString("family")
		transport, _ := cmd.Flags().GetString("transport")
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		namespace, _ := cmd.Flags().GetString("namespace")
		container, _ := cmd.Flags().GetString("container")
		environment, _ := cmd.Flags().GetString("environment")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		sshKey, _ := cmd.Flags().GetString("ssh-key")
		kubeconfig, _ := cmd.Flags().GetString("kubeconfig")

		var encryptedCreds []byte
		creds := executor.Credentials{Username: username, Password: password, SSHKey: sshKey, KubeconfigPath: kubeconfig}
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

		server := &types.Server{
			ID:             uuid.New().String(),
			Name:           args[0],
			Transport:      types.TransportKind(transport),
			Family:         types.DatabaseFamily(family),
			Host:           host,
			Port:           port,
			Namespace:      namespace,
			ContainerName:  container,
			EncryptedCreds: encryptedCreds,
			Environment:    environment,
			Health:         types.HealthUnknown,
			Active:         true,
			CreatedAt:      time.Now(),
		}

		if err := a.Catalog.CreateServer(server); err != nil {
			return fmt.Errorf("create server: %w", err)
		}
		fmt.Printf("Server created: %s (%s)\n", server.Name, server.ID)
		return nil
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		servers, err := a.Catalog.ListServers()
		if err != nil {
			return fmt.Errorf("list servers: %w", err)
		}
		for _, s := range servers {
			fmt.Printf("%s\t%s\t%s\t%s\t%s:%d\t%s\n", s.ID, s.Name, s.Family, s.Transport, s.Host, s.Port, s.Health)
		}
		return nil
	},
}

func init() {
	serverAddCmd.Flags().String("family", "", "Database family: postgresql, mysql, mongodb, redis (required)")
	serverAddCmd.Flags().String("transport", "shell", "Transport: shell, container, pod")
	serverAddCmd.Flags().String("host", "", "Database host (required)")
	serverAddCmd.Flags().Int("port", 0, "Database port (required)")
	serverAddCmd.Flags().String("namespace", "", "Kubernetes namespace (pod transport only)")
	serverAddCmd.Flags().String("container", "", "Container name (container transport) or container within the pod named by --host (pod transport)")
	serverAddCmd.Flags().String("environment", "production", "Free-form environment label")
	serverAddCmd.Flags().String("username", "", "Database username")
	serverAddCmd.Flags().String("password", "", "Database password")
	serverAddCmd.Flags().String("ssh-key", "", "Path to an SSH private key (shell transport)")
	serverAddCmd.Flags().String("kubeconfig", "", "Path to a kubeconfig file (pod transport)")
	_ = serverAddCmd.MarkFlagRequired("family")
	_ = serverAddCmd.MarkFlagRequired("host")
	_ = serverAddCmd.MarkFlagRequired("port")

	serverCmd.AddCommand(serverAddCmd)
	serverCmd.AddCommand(serverListCmd)
}
