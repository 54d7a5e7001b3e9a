// Package config loads Guardian's runtime configuration: the
// scheduler/reaper/prober tick intervals (loaded only, see Config), the
// worker pool width, the timeouts, the blob store endpoint, and the
// notification/encryption settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved runtime configuration, after defaults,
// an optional config file, and GUARDIAN_-prefixed environment overrides
// have all been applied.
type Config struct {
	DataDir string
	TempDir string

	// SchedulerTick, ReaperTick and ProberTick are loaded but not applied:
	// the scheduler and reaper tick at their packages' TickInterval
	// constants, and the prober at health.DefaultConfig's Interval.
	SchedulerTick  time.Duration
	ReaperTick     time.Duration
	ProberTick     time.Duration
	WorkerPoolSize int
	ExecuteTimeout time.Duration
	TaskTimeLimit  time.Duration

	// EncryptionPassphraseEnv names the environment variable holding the
	// PBKDF2 passphrase; Guardian never reads a passphrase from a config
	// file directly.
	EncryptionPassphraseEnv string

	BlobEndpoint  string
	BlobBucket    string
	BlobAccessKey string
	BlobSecretKey string
	BlobUseSSL    bool

	NotifyWebhookURL string
	NotifySMTPHost   string
	NotifySMTPPort   int
	NotifySMTPFrom   string
	NotifySMTPTo     []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./guardian-data")
	v.SetDefault("temp_dir", "./guardian-data/tmp")

	v.SetDefault("scheduler_tick", "60s")
	v.SetDefault("reaper_tick", "3600s")
	v.SetDefault("prober_tick", "60s")
	v.SetDefault("worker_pool_size", 5)
	v.SetDefault("execute_timeout", "300s")
	v.SetDefault("task_time_limit", "3600s")

	v.SetDefault("encryption_passphrase_env", "GUARDIAN_ENCRYPTION_PASSPHRASE")

	v.SetDefault("blob_use_ssl", true)
}

// Load reads configFile (if non-empty and present) over viper's defaults,
// then applies GUARDIAN_-prefixed environment overrides (e.g.
// GUARDIAN_BLOB_BUCKET overrides blob_bucket).
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("guardian")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		DataDir:                 v.GetString("data_dir"),
		TempDir:                 v.GetString("temp_dir"),
		SchedulerTick:           v.GetDuration("scheduler_tick"),
		ReaperTick:              v.GetDuration("reaper_tick"),
		ProberTick:              v.GetDuration("prober_tick"),
		WorkerPoolSize:          v.GetInt("worker_pool_size"),
		ExecuteTimeout:          v.GetDuration("execute_timeout"),
		TaskTimeLimit:           v.GetDuration("task_time_limit"),
		EncryptionPassphraseEnv: v.GetString("encryption_passphrase_env"),
		BlobEndpoint:            v.GetString("blob_endpoint"),
		BlobBucket:              v.GetString("blob_bucket"),
		BlobAccessKey:           v.GetString("blob_access_key"),
		BlobSecretKey:           v.GetString("blob_secret_key"),
		BlobUseSSL:              v.GetBool("blob_use_ssl"),
		NotifyWebhookURL:        v.GetString("notify_webhook_url"),
		NotifySMTPHost:          v.GetString("notify_smtp_host"),
		NotifySMTPPort:          v.GetInt("notify_smtp_port"),
		NotifySMTPFrom:          v.GetString("notify_smtp_from"),
		NotifySMTPTo:            v.GetStringSlice("notify_smtp_to"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BlobEndpoint == "" {
		return fmt.Errorf("blob_endpoint is required")
	}
	if c.BlobBucket == "" {
		return fmt.Errorf("blob_bucket is required")
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker_pool_size must be positive, got %d", c.WorkerPoolSize)
	}
	return nil
}
