// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package config loads the tool configuration from defaults, an optional YAML file,
// a .env file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/resuralph/ralphstack"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

const (
	ConfigName = "ralphstack"
	EnvPrefix  = "RALPHSTACK"
)

// forwardedEnv maps config keys to the plain variable names the functions receive.
var forwardedEnv = map[string]string{
	"environment.discord_public_key":  "DISCORD_PUBLIC_KEY",
	"environment.bucket_region":       "BUCKET_REGION",
	"environment.s3_bucket_name":      "S3_BUCKET_NAME",
	"environment.dynamodb_table_name": "DYNAMODB_TABLE_NAME",
	"environment.openai_api_key":      "OPENAI_API_KEY",
	"environment.hypothesis_api_key":  "HYPOTHESIS_API_KEY",
	"environment.iam_policy_arn":      "RESURALPH_IAM_POLICY",
}

// DataDir holds the datastore and log files unless configured otherwise.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ralphstack"
	}
	return filepath.Join(home, ".ralphstack")
}

func DefaultConfig() *pkgmodel.Config {
	v := viper.New()
	setDefaults(v)

	var cfg pkgmodel.Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("error unmarshaling default config: %v", err))
	}
	return &cfg
}

// Load reads the configuration. An empty configFile searches ralphstack.yaml in ".",
// "./config" and "~/.config/ralphstack"; a missing file is not an error.
func Load(configFile string) (*pkgmodel.Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setupViper(v, configFile)
	if err := bindEnvironmentVariables(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg pkgmodel.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadEnvFile loads variables from path without overriding ones already set.
func loadEnvFile(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

func setupViper(v *viper.Viper, configFile string) {
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func bindEnvironmentVariables(v *viper.Viper) error {
	for key, name := range forwardedEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	if err := v.BindEnv("target.region", EnvPrefix+"_TARGET_REGION", "AWS_REGION", "AWS_DEFAULT_REGION"); err != nil {
		return err
	}
	return v.BindEnv("target.profile", EnvPrefix+"_TARGET_PROFILE", "AWS_PROFILE")
}

func setDefaults(v *viper.Viper) {
	dataDir := DataDir()

	v.SetDefault("stack_name", ralphstack.DefaultStackName)
	v.SetDefault("max_parallel", 8)

	v.SetDefault("target.region", "us-east-1")
	v.SetDefault("target.profile", "")

	v.SetDefault("assets.directory", "./src")
	v.SetDefault("assets.dockerfile", "Dockerfile")
	v.SetDefault("assets.repository", "")
	v.SetDefault("assets.platform", "linux/arm64")
	v.SetDefault("assets.image_uri", "")

	for key := range forwardedEnv {
		v.SetDefault(key, "")
	}

	v.SetDefault("datastore.type", pkgmodel.SqliteDatastore)
	v.SetDefault("datastore.sqlite.file_path", filepath.Join(dataDir, "ralphstack.db"))
	v.SetDefault("datastore.postgres.host", "localhost")
	v.SetDefault("datastore.postgres.port", 5432)
	v.SetDefault("datastore.postgres.user", "postgres")
	v.SetDefault("datastore.postgres.password", "")
	v.SetDefault("datastore.postgres.database", "ralphstack")
	v.SetDefault("datastore.postgres.schema", "public")
	v.SetDefault("datastore.postgres.connection_params", "")

	v.SetDefault("retry.status_check_interval", 5*time.Second)
	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.retry_delay", 10*time.Second)

	v.SetDefault("logging.file_path", filepath.Join(dataDir, "log", "ralphstack.log"))
	v.SetDefault("logging.file_level", "debug")
	v.SetDefault("logging.console_level", "info")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.service_name", ConfigName)
	v.SetDefault("otel.otlp.enabled", false)
	v.SetDefault("otel.otlp.endpoint", "localhost:4317")
	v.SetDefault("otel.otlp.protocol", "grpc")
	v.SetDefault("otel.otlp.insecure", true)

	v.SetDefault("server.hostname", "localhost")
	v.SetDefault("server.port", 49690)
}

// Validate reports every invalid setting at once.
func Validate(cfg *pkgmodel.Config) error {
	var errs []error

	switch cfg.Datastore.DatastoreType {
	case pkgmodel.SqliteDatastore:
		if cfg.Datastore.Sqlite.FilePath == "" {
			errs = append(errs, errors.New("datastore.sqlite.file_path must be set"))
		}
	case pkgmodel.PostgresDatastore:
		if cfg.Datastore.Postgres.Host == "" || cfg.Datastore.Postgres.Database == "" {
			errs = append(errs, errors.New("datastore.postgres requires host and database"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported datastore type %q", cfg.Datastore.DatastoreType))
	}

	if cfg.Retry.StatusCheckInterval <= 0 {
		errs = append(errs, errors.New("retry.status_check_interval must be positive"))
	}
	if cfg.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must not be negative"))
	}
	if cfg.MaxParallel < 1 {
		errs = append(errs, errors.New("max_parallel must be at least 1"))
	}
	if cfg.OTel.Enabled && cfg.OTel.OTLP.Protocol != "grpc" && cfg.OTel.OTLP.Protocol != "http" {
		errs = append(errs, fmt.Errorf("otel.otlp.protocol must be grpc or http, got %q", cfg.OTel.OTLP.Protocol))
	}
	if cfg.StackName == "" {
		errs = append(errs, errors.New("stack_name must be set"))
	}

	return errors.Join(errs...)
}
