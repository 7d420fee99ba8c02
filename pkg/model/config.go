// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package model

import (
	"time"
)

const (
	SqliteDatastore   = "sqlite"
	PostgresDatastore = "postgres"
)

type ServerConfig struct {
	Hostname string `mapstructure:"hostname"`
	Port     int    `mapstructure:"port"`
}

type DatastoreConfig struct {
	DatastoreType string         `mapstructure:"type"`
	Sqlite        SqliteConfig   `mapstructure:"sqlite"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

type SqliteConfig struct {
	FilePath string `mapstructure:"file_path"`
}

type PostgresConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	User             string `mapstructure:"user"`
	Password         string `mapstructure:"password"`
	Database         string `mapstructure:"database"`
	Schema           string `mapstructure:"schema"`
	ConnectionParams string `mapstructure:"connection_params"`
}

type RetryConfig struct {
	StatusCheckInterval time.Duration `mapstructure:"status_check_interval"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
}

type LoggingConfig struct {
	FilePath        string `mapstructure:"file_path"`
	FileLogLevel    string `mapstructure:"file_level"`
	ConsoleLogLevel string `mapstructure:"console_level"`
}

type OTLPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Protocol string `mapstructure:"protocol"`
	Insecure bool   `mapstructure:"insecure"`
}

type OTelConfig struct {
	Enabled     bool       `mapstructure:"enabled"`
	ServiceName string     `mapstructure:"service_name"`
	OTLP        OTLPConfig `mapstructure:"otlp"`
}

type TargetConfig struct {
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

type AssetsConfig struct {
	// Directory is the docker build context, "./src" for the command pipeline.
	Directory  string `mapstructure:"directory"`
	Dockerfile string `mapstructure:"dockerfile"`
	Repository string `mapstructure:"repository"`
	Platform   string `mapstructure:"platform"`
	// ImageURI skips the build and deploys a prebuilt image.
	ImageURI string `mapstructure:"image_uri"`
}

// FunctionEnvironment holds the values forwarded verbatim into the functions.
type FunctionEnvironment struct {
	DiscordPublicKey  string `mapstructure:"discord_public_key"`
	BucketRegion      string `mapstructure:"bucket_region"`
	S3BucketName      string `mapstructure:"s3_bucket_name"`
	DynamoDBTableName string `mapstructure:"dynamodb_table_name"`
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	HypothesisAPIKey  string `mapstructure:"hypothesis_api_key"`
	IAMPolicyArn      string `mapstructure:"iam_policy_arn"`
}

type Config struct {
	StackName   string              `mapstructure:"stack_name"`
	Target      TargetConfig        `mapstructure:"target"`
	Assets      AssetsConfig        `mapstructure:"assets"`
	Environment FunctionEnvironment `mapstructure:"environment"`
	Datastore   DatastoreConfig     `mapstructure:"datastore"`
	Retry       RetryConfig         `mapstructure:"retry"`
	Logging     LoggingConfig       `mapstructure:"logging"`
	OTel        OTelConfig          `mapstructure:"otel"`
	Server      ServerConfig        `mapstructure:"server"`
	MaxParallel int                 `mapstructure:"max_parallel"`
}
