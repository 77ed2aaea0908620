package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicgrab/engine/internal/config"
	"github.com/musicgrab/engine/internal/constants"
)

const testBaseConfigContent = `
catalog_client_id: "config_id"
catalog_client_secret: "config_secret"
output_path: "/config/output"
database_path: "/config/musicgrab.db"
log_level: "info"
max_concurrent: 8
min_concurrent: 2
max_retries: 3
watchdog_timeout: "90s"
resolver_cache_ttl: "1h"
request_spacing: "250ms"
segment_count: 4
min_segment_size: "256KB"
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test-config.yaml")

	err := os.WriteFile(configPath, []byte(content), constants.DefaultFilePermissions) //nolint:gosec // test file.
	require.NoError(t, err)

	return configPath
}

// TestFlagOverrides tests that command-line flags correctly override configuration file values.
//
//nolint:nolintlint,tparallel // Cannot run in parallel due to Viper global state.
func TestFlagOverrides(t *testing.T) {
	tests := []struct {
		name           string
		flags          map[string]string
		expectedConfig func(*testing.T, *config.Config)
	}{
		{
			name:  "no flags - use config values",
			flags: map[string]string{},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "/config/output", cfg.OutputPath)
				assert.Equal(t, "/config/musicgrab.db", cfg.DatabasePath)
				assert.Equal(t, int64(8), cfg.MaxConcurrent)
				assert.False(t, cfg.DryRun)
			},
		},
		{
			name: "output flag only - override output path",
			flags: map[string]string{
				"output": "/flag/output",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "/flag/output", cfg.OutputPath)
				assert.Equal(t, int64(8), cfg.MaxConcurrent)
			},
		},
		{
			name: "database flag only - override database path",
			flags: map[string]string{
				"database": "/flag/musicgrab.db",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "/config/output", cfg.OutputPath)
				assert.Equal(t, "/flag/musicgrab.db", cfg.DatabasePath)
			},
		},
		{
			name: "max-concurrent flag only - override concurrency ceiling",
			flags: map[string]string{
				"max-concurrent": "4",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, int64(4), cfg.MaxConcurrent)
				assert.Equal(t, "/config/output", cfg.OutputPath)
			},
		},
		{
			name: "dry-run flag only - enable dry run",
			flags: map[string]string{
				"dry-run": "true",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.True(t, cfg.DryRun)
			},
		},
		{
			name: "all flags - override everything",
			flags: map[string]string{
				"output":         "/all/output",
				"database":       "/all/musicgrab.db",
				"max-concurrent": "6",
				"dry-run":        "true",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "/all/output", cfg.OutputPath)
				assert.Equal(t, "/all/musicgrab.db", cfg.DatabasePath)
				assert.Equal(t, int64(6), cfg.MaxConcurrent)
				assert.True(t, cfg.DryRun)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeTestConfig(t, testBaseConfigContent)

			cfg, err := config.LoadConfig(configPath)
			require.NoError(t, err)

			testCmd := &cobra.Command{Use: "test"}
			testCmd.Flags().StringP("output", "o", "", "output directory")
			testCmd.Flags().StringP("database", "d", "", "database path")
			testCmd.Flags().Int64P("max-concurrent", "j", 0, "max concurrent downloads")
			testCmd.Flags().BoolP("dry-run", "n", false, "dry run")

			for flagName, flagValue := range tt.flags {
				require.NoError(t, testCmd.Flags().Set(flagName, flagValue), "failed to set flag %s", flagName)
			}

			err = bindFlagsToConfig(testCmd.Flags(), cfg)
			require.NoError(t, err)

			tt.expectedConfig(t, cfg)
		})
	}
}

// TestFlagOverrides_InvalidValues tests that invalid flag values are caught during validation.
//
//nolint:nolintlint,tparallel // Cannot run in parallel due to Viper global state.
func TestFlagOverrides_InvalidValues(t *testing.T) {
	invalidTests := []struct {
		name          string
		flagName      string
		flagValue     string
		expectedError string
	}{
		{
			name:          "invalid max-concurrent - zero",
			flagName:      "max-concurrent",
			flagValue:     "0",
			expectedError: config.ErrInvalidMaxConcurrent.Error(),
		},
		{
			name:          "invalid max-concurrent - negative",
			flagName:      "max-concurrent",
			flagValue:     "-1",
			expectedError: config.ErrInvalidMaxConcurrent.Error(),
		},
	}

	for _, tt := range invalidTests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeTestConfig(t, testBaseConfigContent)

			cfg, err := config.LoadConfig(configPath)
			require.NoError(t, err)

			testCmd := &cobra.Command{Use: "test"}
			testCmd.Flags().Int64P("max-concurrent", "j", 0, "max concurrent downloads")

			err = testCmd.Flags().Set(tt.flagName, tt.flagValue)
			require.NoError(t, err)

			err = bindFlagsToConfig(testCmd.Flags(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

// TestBindFlagsToConfig_UnchangedFlags tests that unchanged flags don't override config values.
//
//nolint:nolintlint,tparallel // Cannot run in parallel due to Viper global state.
func TestBindFlagsToConfig_UnchangedFlags(t *testing.T) {
	configContent := `
catalog_client_id: "config_id"
catalog_client_secret: "config_secret"
output_path: "/config/output"
database_path: "/config/musicgrab.db"
log_level: "info"
max_concurrent: 6
min_concurrent: 2
max_retries: 3
watchdog_timeout: "90s"
resolver_cache_ttl: "1h"
request_spacing: "250ms"
segment_count: 4
min_segment_size: "256KB"
`

	configPath := writeTestConfig(t, configContent)

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	testCmd := &cobra.Command{Use: "test"}
	testCmd.Flags().StringP("output", "o", "", "output directory")
	testCmd.Flags().Int64P("max-concurrent", "j", 0, "max concurrent downloads")

	err = bindFlagsToConfig(testCmd.Flags(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "/config/output", cfg.OutputPath)
	assert.Equal(t, int64(6), cfg.MaxConcurrent)
}

// TestBindFlagsToConfig_EmptyFlagSet tests handling of empty flag set.
func TestBindFlagsToConfig_EmptyFlagSet(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		CatalogClientID:     "id",
		CatalogClientSecret: "secret",
		OutputPath:          "/out",
		LogLevel:            "info",
		MaxConcurrent:       8,
		MinConcurrent:       2,
		MaxRetries:          3,
		WatchdogTimeout:     "90s",
		ResolverCacheTTL:    "1h",
		RequestSpacing:      "250ms",
		SegmentCount:        4,
		MinSegmentSize:      "256KB",
	}

	emptyFlags := pflag.NewFlagSet("test", pflag.ContinueOnError)

	err := bindFlagsToConfig(emptyFlags, cfg)
	require.NoError(t, err)
}
