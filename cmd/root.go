package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/musicgrab/engine/internal/app"
	"github.com/musicgrab/engine/internal/config"
	"github.com/musicgrab/engine/internal/logger"
	"github.com/musicgrab/engine/internal/version"
)

var (
	// configFilenameFromFlag stores the config filename provided via command-line flag.
	//
	//nolint:gochecknoglobals // It is required for configuration initialization before the application starts.
	configFilenameFromFlag string

	// appConfig stores the application configuration loaded from file and flags.
	//
	//nolint:gochecknoglobals,lll // It is initialized once during the application's startup and shared across the command execution logic.
	appConfig *config.Config

	// rootCmd is the main Cobra command for the application.
	//
	//nolint:gochecknoglobals,lll // Cobra command requires a global definition for proper command-line parsing and execution.
	rootCmd = &cobra.Command{
		Use:   "musicgrab [flags] {urls}",
		Short: "Import playlist/album URLs and download each track's audio.",
		Long: `musicgrab resolves every track in a playlist or album URL from a
third-party streaming catalog to a downloadable audio stream on a
video platform, and materializes the audio files on local storage.

Each URL argument is submitted as its own batch: extraction, matching,
and download run concurrently across all submitted batches, with
bounded adaptive concurrency, global rate-limit back-pressure, and
crash recovery on restart.`,
		Args:             cobra.MinimumNArgs(1),
		PersistentPreRun: initConfig,
		Run: func(cmd *cobra.Command, urls []string) {
			// MUSICGRAB_DUMP_CONFIG short-circuits into a JSON config dump
			// instead of running the engine, so E2E tests can assert on
			// flag/config resolution without a real network round trip.
			if os.Getenv("MUSICGRAB_DUMP_CONFIG") == "1" {
				dumpConfig(appConfig)
				return
			}

			app.ExecuteRootCommand(cmd.Context(), appConfig, urls)
		},
	}
)

// Execute executes the root command.
func Execute() {
	signals := []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)

	defer func() {
		_ = logger.Logger().Sync() //nolint:errcheck // No need to check the error here, application will exit anyway.
	}()

	defer stop()

	go func() {
		defer stop()

		err := rootCmd.ExecuteContext(ctx)
		cobra.CheckErr(err)
	}()

	<-ctx.Done()
}

//nolint:gochecknoinits // Cobra requires the init function to set up flags before the command is executed.
func init() {
	version.AttachCobraVersionCommand(rootCmd)

	rootCmd.PersistentFlags().StringVarP(
		&configFilenameFromFlag,
		"config",
		"c",
		"",
		fmt.Sprintf("path to the configuration file (default is '%s')",
			config.DefaultConfigFilename))

	rootCmdFlags := rootCmd.Flags()

	rootCmdFlags.StringP(
		"output",
		"o",
		"",
		"directory completed audio files are written to (created if missing).")

	rootCmdFlags.StringP(
		"database",
		"d",
		"",
		"path to the engine's SQLite store file.")

	rootCmdFlags.Int64P(
		"max-concurrent",
		"j",
		0,
		"ceiling on simultaneous download workers.")

	rootCmdFlags.BoolP(
		"dry-run",
		"n",
		false,
		"extract and match without downloading.")
}

func initConfig(cmd *cobra.Command, _ []string) {
	var err error

	appConfig, err = config.LoadConfig(configFilenameFromFlag)
	if err != nil {
		logger.Fatalf(cmd.Context(), "Failed to load configuration: %v", err)
	}

	if err = bindFlagsToConfig(cmd.Flags(), appConfig); err != nil {
		logger.Fatalf(cmd.Context(), "Failed to parse flags: %v", err)
	}

	logger.SetLevel(appConfig.ParsedLogLevel)
}

func bindFlagsToConfig(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error

	if flag := flags.Lookup("output"); flag != nil && flag.Changed {
		cfg.OutputPath, err = flags.GetString("output")
		if err != nil {
			return fmt.Errorf("failed to get output value: %w", err)
		}
	}

	if flag := flags.Lookup("database"); flag != nil && flag.Changed {
		cfg.DatabasePath, err = flags.GetString("database")
		if err != nil {
			return fmt.Errorf("failed to get database value: %w", err)
		}
	}

	if flag := flags.Lookup("max-concurrent"); flag != nil && flag.Changed {
		cfg.MaxConcurrent, err = flags.GetInt64("max-concurrent")
		if err != nil {
			return fmt.Errorf("failed to get max-concurrent value: %w", err)
		}
	}

	if flag := flags.Lookup("dry-run"); flag != nil && flag.Changed {
		cfg.DryRun, err = flags.GetBool("dry-run")
		if err != nil {
			return fmt.Errorf("failed to get dry-run value: %w", err)
		}
	}

	return config.ValidateConfig(cfg)
}

// configDump is the JSON shape MUSICGRAB_DUMP_CONFIG prints, covering
// the fields E2E tests assert flag/config resolution against.
type configDump struct {
	OutputPath    string `json:"output_path"`
	DatabasePath  string `json:"database_path"`
	MaxConcurrent int64  `json:"max_concurrent"`
	DryRun        bool   `json:"dry_run"`
}

func dumpConfig(cfg *config.Config) {
	dump := configDump{
		OutputPath:    cfg.OutputPath,
		DatabasePath:  cfg.DatabasePath,
		MaxConcurrent: cfg.MaxConcurrent,
		DryRun:        cfg.DryRun,
	}

	jsonData, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(jsonData))
}
