// Package cmd provides the command-line interface for the caseindex
// pipeline.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "caseindex",
	Short: "Asynchronous case-file chunking and indexing pipeline",
	Long: `Caseindex converts large multi-document case files into searchable,
analyzable chunks with embeddings, without blocking the requesting caller
and without losing work when a worker crashes mid-batch.

The pipeline provides:
- Chunking strategy selection per document type and size
- Asynchronous per-chunk extraction and embedding via NATS JetStream
- Job lifecycle tracking with atomic progress counters
- Batch sessions with pause/resume/checkpoint semantics
- A stuck-job reaper for work the dispatcher silently dropped`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the loaded configuration, exiting when configuration
// failed to load.
func GetConfig() *config.Config {
	if cfg == nil {
		fmt.Fprintln(os.Stderr, "configuration not loaded")
		os.Exit(1)
	}
	return cfg
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CASEINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; defaults and environment apply.
	}

	loaded, err := config.New(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded

	slogger.Configure(os.Stdout, cfg.Log.Level, cfg.Log.Format)
}

func setDefaults(v *viper.Viper) {
	// Worker defaults
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.queue_group", "chunk-workers")
	v.SetDefault("worker.job_timeout", "30m")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "caseindex")
	v.SetDefault("database.name", "caseindex")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Gemini defaults
	v.SetDefault("gemini.model", "gemini-embedding-001")
	v.SetDefault("gemini.dimensions", 768)
	v.SetDefault("gemini.timeout", "30s")

	// Pipeline defaults
	v.SetDefault("pipeline.failure_tolerance", 0.0)
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.batch_concurrency", 4)
	v.SetDefault("pipeline.generate_embeddings", true)

	// Cleanup defaults
	v.SetDefault("cleanup.schedule", "")
	v.SetDefault("cleanup.threshold_hours", 2)
	v.SetDefault("cleanup.mode", "mark-failed")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
