package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // profiling endpoints under guardian serve --enable-pprof
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexusdb/guardian/pkg/blob"
	"github.com/nexusdb/guardian/pkg/catalog"
	"github.com/nexusdb/guardian/pkg/config"
	"github.com/nexusdb/guardian/pkg/crypto"
	"github.com/nexusdb/guardian/pkg/events"
	"github.com/nexusdb/guardian/pkg/health"
	"github.com/nexusdb/guardian/pkg/log"
	"github.com/nexusdb/guardian/pkg/metrics"
	"github.com/nexusdb/guardian/pkg/notify"
	"github.com/nexusdb/guardian/pkg/pipeline"
	"github.com/nexusdb/guardian/pkg/reaper"
	"github.com/nexusdb/guardian/pkg/scheduler"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Guardian - multi-database backup and restore control plane",
	Long: `Guardian schedules, runs, and retains encrypted backups across
PostgreSQL, MySQL, MongoDB and Redis servers reachable over SSH,
containerd, or Kubernetes exec transports, delivered as a single binary
with an embedded bbolt catalog and S3-compatible blob storage.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Guardian version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (defaults + GUARDIAN_ env vars are used when empty)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(retentionCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(healthCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// app bundles every collaborator a command might need, built once from the
// resolved Config. Commands that only touch the catalog (server/schedule/
// retention CRUD) leave most fields unused; serve and backup/restore use
// the full set.
type app struct {
	Config   *config.Config
	Catalog  catalog.Catalog
	Secrets  *crypto.SecretsManager
	Blob     blob.Store
	Bus      *events.Bus
	Notifier notify.Sink
}

func buildApp(ctx context.Context) (*app, error) {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	cat, err := catalog.NewBoltCatalog(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	salt, err := cat.GetOrCreateEncryptionSalt()
	if err != nil {
		return nil, fmt.Errorf("load encryption salt: %w", err)
	}

	passphrase := os.Getenv(cfg.EncryptionPassphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.EncryptionPassphraseEnv)
	}

	secrets, err := crypto.NewSecretsManager(crypto.DeriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("build secrets manager: %w", err)
	}

	store, err := blob.NewMinIOStore(ctx, blob.Config{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		UseSSL:    cfg.BlobUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	var notifier notify.Sink = notify.NullSink{}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookSink(cfg.NotifyWebhookURL)
	}

	return &app{
		Config:   cfg,
		Catalog:  cat,
		Secrets:  secrets,
		Blob:     store,
		Bus:      events.NewBus(),
		Notifier: notifier,
	}, nil
}

func (a *app) Close() {
	if err := a.Catalog.Close(); err != nil {
		log.WithComponent("cli").Warn().Err(err).Msg("close catalog")
	}
}

func (a *app) pipeline() *pipeline.Pipeline {
	p := pipeline.NewPipeline(a.Catalog, a.Secrets, a.Blob, a.Bus, a.Notifier, a.Config.TempDir)
	p.ExecuteTimeout = a.Config.ExecuteTimeout
	p.TaskTimeLimit = a.Config.TaskTimeLimit
	return p
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, reaper and health prober as a long-lived daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		pool := pipeline.NewPool(ctx, a.Config.WorkerPoolSize, 0)
		pipe := a.pipeline()

		sched := scheduler.NewScheduler(a.Catalog, pool, func(ctx context.Context, backupID string) error {
			return pipe.RunBackup(ctx, backupID)
		})
		sched.Start()
		defer sched.Stop()

		reap := reaper.NewReaper(a.Catalog)
		reap.Start()
		defer reap.Stop()

		prober := health.NewProber(a.Catalog, a.Secrets, a.Bus, a.Notifier)
		proberCtx, cancelProber := context.WithCancel(ctx)
		defer cancelProber()
		go prober.Run(proberCtx)

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.WithComponent("cli").Error().Err(err).Msg("metrics server")
				}
			}()
			defer srv.Shutdown(context.Background())
			fmt.Printf("Metrics listening on %s/metrics\n", metricsAddr)
		}

		if enabled, _ := cmd.Flags().GetBool("enable-pprof"); enabled {
			pprofAddr := "127.0.0.1:6060"
			go func() {
				if err := http.ListenAndServe(pprofAddr, nil); err != nil {
					log.WithComponent("cli").Error().Err(err).Msg("pprof server")
				}
			}()
			fmt.Printf("Profiling endpoints enabled at http://%s/debug/pprof/\n", pprofAddr)
		}

		fmt.Println("Guardian is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", ":9090", "Address to serve Prometheus metrics on (empty disables)")
	serveCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints")
}
