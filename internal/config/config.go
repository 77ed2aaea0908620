// Package config loads, validates, and persists the engine's
// YAML-backed configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/logger"
)

// Config holds all engine configuration settings.
type Config struct {
	// CatalogClientID is the client-credentials id for the authenticated
	// catalog (Variant B extractor).
	CatalogClientID string `mapstructure:"catalog_client_id"`
	// CatalogClientSecret is the client-credentials secret paired with
	// CatalogClientID.
	CatalogClientSecret string `mapstructure:"catalog_client_secret"`
	// OutputPath is the directory where completed audio files are written.
	OutputPath string `mapstructure:"output_path"`
	// DatabasePath is the path to the embedded SQLite store file.
	DatabasePath string `mapstructure:"database_path"`
	// LogLevel specifies the logging verbosity level.
	LogLevel string `mapstructure:"log_level"`
	// MaxConcurrent is the ceiling on simultaneous download workers.
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
	// MinConcurrent is the floor the adaptive governor will not halve below.
	MinConcurrent int64 `mapstructure:"min_concurrent"`
	// MaxRetries bounds how many times a track is requeued before FAILED.
	MaxRetries int64 `mapstructure:"max_retries"`
	// WatchdogTimeout is how long a track may sit without progress before
	// the watchdog force-requeues it (e.g. "90s").
	WatchdogTimeout string `mapstructure:"watchdog_timeout"`
	// ResolverCacheTTL is how long a resolved stream URL stays cached
	// (e.g. "1h").
	ResolverCacheTTL string `mapstructure:"resolver_cache_ttl"`
	// RequestSpacing is the minimum pause the dispatcher inserts between
	// consecutive dispatch attempts (e.g. "250ms").
	RequestSpacing string `mapstructure:"request_spacing"`
	// SegmentCount is how many parallel byte ranges the segmented
	// downloader splits a large file into.
	SegmentCount int64 `mapstructure:"segment_count"`
	// MinSegmentSize is the per-segment byte threshold below which the
	// downloader falls back to a single stream (e.g. "256KB").
	MinSegmentSize string `mapstructure:"min_segment_size"`
	// MirrorInstances is an ordered list of fallback resolver hosts tried
	// after the primary extractor fails.
	MirrorInstances []string `mapstructure:"mirror_instances"`
	// RejectTitlePatterns extends the built-in non-music title reject
	// list with case-insensitive substrings.
	RejectTitlePatterns []string `mapstructure:"reject_title_patterns"`
	// DryRun indicates whether to preview a batch without downloading files.
	DryRun bool

	// ParsedLogLevel is the parsed zap log level.
	ParsedLogLevel zapcore.Level
	// ParsedWatchdogTimeout is the parsed watchdog timeout duration.
	ParsedWatchdogTimeout time.Duration
	// ParsedResolverCacheTTL is the parsed resolver cache TTL duration.
	ParsedResolverCacheTTL time.Duration
	// ParsedRequestSpacing is the parsed dispatcher spacing duration.
	ParsedRequestSpacing time.Duration
	// ParsedMinSegmentSizeBytes is the parsed minimum segment size in bytes.
	ParsedMinSegmentSizeBytes int64
}

const (
	// DefaultConfigFilename is the default name of the configuration file.
	DefaultConfigFilename = ".musicgrab.yaml"

	// DefaultOutputPath is the directory name completed audio files land in.
	DefaultOutputPath = "Music"

	// DefaultDatabasePath is the default SQLite store location.
	DefaultDatabasePath = "musicgrab.db"

	// DefaultMaxConcurrent is the engine's default concurrency ceiling.
	DefaultMaxConcurrent = 8

	// DefaultMinConcurrent is the engine's default concurrency floor.
	DefaultMinConcurrent = 2

	// DefaultMaxRetries is the default per-track retry budget.
	DefaultMaxRetries = 3

	// DefaultWatchdogTimeout is the default stall timeout before requeue.
	DefaultWatchdogTimeout = "90s"

	// DefaultResolverCacheTTL is the default stream-URL cache lifetime.
	DefaultResolverCacheTTL = "1h"

	// DefaultRequestSpacing is the default pause between dispatch attempts.
	DefaultRequestSpacing = "250ms"

	// DefaultSegmentCount is the default number of parallel byte ranges.
	DefaultSegmentCount = 4

	// DefaultMinSegmentSize is the default per-segment size floor.
	DefaultMinSegmentSize = "256KB"

	// DefaultMaxLogLength caps how many bytes of a request/response body
	// the debug transport logger dumps before truncating.
	DefaultMaxLogLength = 2048

	// bytesPerKB is the conversion factor used when parsing "KB" and
	// "MB" sizes.
	bytesPerKB = 1024
)

// Static error definitions for better error handling.
var (
	// ErrEmptyCatalogCredentials indicates the catalog client-credentials pair is missing.
	ErrEmptyCatalogCredentials = errors.New("catalog_client_id and catalog_client_secret cannot be empty")
	// ErrEmptyOutputPath indicates the output directory is missing.
	ErrEmptyOutputPath = errors.New("output_path cannot be empty")
	// ErrUnknownLogLevel indicates that the log level is not recognized.
	ErrUnknownLogLevel = errors.New("unknown log level")
	// ErrInvalidMaxConcurrent indicates max_concurrent is not a positive integer.
	ErrInvalidMaxConcurrent = errors.New("max_concurrent must be a positive integer")
	// ErrInvalidMinConcurrent indicates min_concurrent is not a positive integer.
	ErrInvalidMinConcurrent = errors.New("min_concurrent must be a positive integer")
	// ErrMinConcurrentTooHigh indicates min_concurrent exceeds max_concurrent.
	ErrMinConcurrentTooHigh = errors.New("min_concurrent cannot be higher than max_concurrent")
	// ErrInvalidMaxRetries indicates max_retries is not a positive integer.
	ErrInvalidMaxRetries = errors.New("max_retries must be a positive integer")
	// ErrInvalidWatchdogTimeout indicates the watchdog timeout duration is invalid.
	ErrInvalidWatchdogTimeout = errors.New("watchdog_timeout must be positive")
	// ErrInvalidResolverCacheTTL indicates the resolver cache TTL duration is invalid.
	ErrInvalidResolverCacheTTL = errors.New("resolver_cache_ttl must be positive")
	// ErrInvalidRequestSpacing indicates the request spacing duration is invalid.
	ErrInvalidRequestSpacing = errors.New("request_spacing must be positive")
	// ErrInvalidSegmentCount indicates segment_count is not a positive integer.
	ErrInvalidSegmentCount = errors.New("segment_count must be a positive integer")
	// ErrInvalidMinSegmentSize indicates min_segment_size could not be parsed.
	ErrInvalidMinSegmentSize = errors.New("min_segment_size must be a positive size like '256KB'")
)

// LoadConfig loads configuration settings from a YAML file.
func LoadConfig(configFilename string) (*Config, error) {
	if configFilename == "" {
		configFilename = DefaultConfigFilename
	}

	viper.SetConfigFile(configFilename)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config from file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ValidateConfig checks the configuration for validity and sets derived fields.
//
//nolint:funlen,gocognit,cyclop // Validation functions naturally have high complexity and length due to sequential checks.
func ValidateConfig(cfg *Config) error {
	clientID := strings.TrimSpace(cfg.CatalogClientID)
	clientSecret := strings.TrimSpace(cfg.CatalogClientSecret)

	if clientID == "" || clientSecret == "" {
		return ErrEmptyCatalogCredentials
	}

	if strings.TrimSpace(cfg.OutputPath) == "" {
		return ErrEmptyOutputPath
	}

	parsedLogLevel, isLogLevelCorrect := logger.ParseLogLevel(cfg.LogLevel)
	if !isLogLevelCorrect {
		return fmt.Errorf("%w: '%s'", ErrUnknownLogLevel, cfg.LogLevel)
	}

	cfg.ParsedLogLevel = parsedLogLevel

	if cfg.MaxConcurrent <= 0 {
		return ErrInvalidMaxConcurrent
	}

	if cfg.MinConcurrent <= 0 {
		return ErrInvalidMinConcurrent
	}

	if cfg.MinConcurrent > cfg.MaxConcurrent {
		return ErrMinConcurrentTooHigh
	}

	if cfg.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}

	var err error

	cfg.ParsedWatchdogTimeout, err = time.ParseDuration(cfg.WatchdogTimeout)
	if err != nil {
		return fmt.Errorf("failed to parse watchdog timeout: %w", err)
	}

	if cfg.ParsedWatchdogTimeout <= 0 {
		return ErrInvalidWatchdogTimeout
	}

	cfg.ParsedResolverCacheTTL, err = time.ParseDuration(cfg.ResolverCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to parse resolver cache ttl: %w", err)
	}

	if cfg.ParsedResolverCacheTTL <= 0 {
		return ErrInvalidResolverCacheTTL
	}

	cfg.ParsedRequestSpacing, err = time.ParseDuration(cfg.RequestSpacing)
	if err != nil {
		return fmt.Errorf("failed to parse request spacing: %w", err)
	}

	if cfg.ParsedRequestSpacing <= 0 {
		return ErrInvalidRequestSpacing
	}

	if cfg.SegmentCount <= 0 {
		return ErrInvalidSegmentCount
	}

	cfg.ParsedMinSegmentSizeBytes, err = parseByteSize(cfg.MinSegmentSize)
	if err != nil || cfg.ParsedMinSegmentSizeBytes <= 0 {
		return ErrInvalidMinSegmentSize
	}

	return nil
}

// parseByteSize parses sizes of the form "256KB"/"1MB"/"512" (bytes).
// It only understands the units the default config ships with; this
// engine never needs fractional units or binary-prefix distinctions.
func parseByteSize(raw string) (int64, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))

	multiplier := int64(1)

	switch {
	case strings.HasSuffix(raw, "MB"):
		multiplier = bytesPerKB * bytesPerKB
		raw = strings.TrimSuffix(raw, "MB")
	case strings.HasSuffix(raw, "KB"):
		multiplier = bytesPerKB
		raw = strings.TrimSuffix(raw, "KB")
	case strings.HasSuffix(raw, "B"):
		raw = strings.TrimSuffix(raw, "B")
	}

	raw = strings.TrimSpace(raw)

	var value int64

	_, err := fmt.Sscanf(raw, "%d", &value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse byte size %q: %w", raw, err)
	}

	return value * multiplier, nil
}

// SaveConfig saves the configuration to the file while preserving the original format and order.
func SaveConfig(cfg *Config) error {
	configFile := getConfigFilePath()

	originalContent, err := os.ReadFile(configFile)
	if err != nil {
		return handleMissingConfigFile(configFile, cfg.CatalogClientSecret, err)
	}

	var node yaml.Node
	if err = yaml.Unmarshal(originalContent, &node); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	updateSecretInNode(&node, cfg.CatalogClientSecret)

	newContent, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err = os.WriteFile(configFile, newContent, constants.DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigFilePath returns the config file path from viper or the default.
func getConfigFilePath() string {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		return DefaultConfigFilename
	}

	return configFile
}

// handleMissingConfigFile creates a new config file if it doesn't exist.
func handleMissingConfigFile(configFile, clientSecret string, err error) error {
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	viper.Set("catalog_client_secret", clientSecret)

	if err = viper.SafeWriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	return nil
}

// updateSecretInNode updates the catalog_client_secret value in the YAML node tree.
func updateSecretInNode(node *yaml.Node, clientSecret string) {
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return
	}

	mapNode := node.Content[0]

	for i := 0; i < len(mapNode.Content); i += 2 {
		keyNode := mapNode.Content[i]
		valueNode := mapNode.Content[i+1]

		if keyNode.Value == "catalog_client_secret" {
			valueNode.Value = clientSecret

			if valueNode.Style == 0 {
				valueNode.Style = yaml.DoubleQuotedStyle
			}

			break
		}
	}
}
