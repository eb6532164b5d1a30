// Package config loads and validates the ETL job configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"songplays_etl/internal/storage"
)

// DefaultPath is read when no explicit config file is given.
const DefaultPath = "dl.yaml"

var dotenvPath = ".env"

var ErrMissingCredentials = errors.New("missing AWS credentials")

// Config is built once at startup and never mutated afterwards.
type Config struct {
	AWS     AWSConfig     `mapstructure:"aws"`
	Paths   PathsConfig   `mapstructure:"paths"`
	ETL     ETLConfig     `mapstructure:"etl"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Input and Output are the parsed forms of Paths.
	Input  storage.Location `mapstructure:"-"`
	Output storage.Location `mapstructure:"-"`
	// Source is the config file that was read, empty when only the environment was used.
	Source string `mapstructure:"-"`
}

type AWSConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

type PathsConfig struct {
	InputData  string `mapstructure:"input_data"`
	OutputData string `mapstructure:"output_data"`
}

type ETLConfig struct {
	SongPrefix string `mapstructure:"song_prefix"`
	LogPrefix  string `mapstructure:"log_prefix"`
	TempDir    string `mapstructure:"temp_dir"`
	Workers    int    `mapstructure:"workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// S3Options returns the credentials and endpoint settings for S3 stores.
func (c Config) S3Options() storage.S3Options {
	return storage.S3Options{
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		Region:          c.AWS.Region,
		Endpoint:        c.AWS.Endpoint,
		ForcePathStyle:  c.AWS.ForcePathStyle,
	}
}

var envBindings = map[string]string{
	"aws.access_key_id":       "AWS_ACCESS_KEY_ID",
	"aws.secret_access_key":   "AWS_SECRET_ACCESS_KEY",
	"aws.region":              "AWS_REGION",
	"aws.endpoint":            "ETL_S3_ENDPOINT",
	"aws.force_path_style":    "ETL_S3_FORCE_PATH_STYLE",
	"paths.input_data":        "ETL_INPUT_DATA",
	"paths.output_data":       "ETL_OUTPUT_DATA",
	"etl.song_prefix":         "ETL_SONG_PREFIX",
	"etl.log_prefix":          "ETL_LOG_PREFIX",
	"etl.temp_dir":            "ETL_TEMP_DIR",
	"etl.workers":             "ETL_WORKERS",
	"log.level":               "ETL_LOG_LEVEL",
	"log.format":              "ETL_LOG_FORMAT",
	"metrics.pushgateway_url": "ETL_PUSHGATEWAY_URL",
	"metrics.job":             "ETL_METRICS_JOB",
}

// Load reads .env (if present), then the YAML file at path (if present),
// then the environment, which wins over the file. The result is validated.
func Load(path string) (Config, error) {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", dotenvPath, err)
	}

	v := viper.New()
	v.SetDefault("aws.region", "us-west-2")
	v.SetDefault("etl.song_prefix", "song_data/")
	v.SetDefault("etl.log_prefix", "log_data/")
	v.SetDefault("etl.temp_dir", "")
	v.SetDefault("etl.workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.job", "songplays_etl")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var source string
	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			source = path
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Source = source

	return cfg.validated()
}

// validated fills derived fields and checks the configuration is usable.
func (c Config) validated() (Config, error) {
	var err error
	if c.Input, err = storage.ParseLocation(c.Paths.InputData); err != nil {
		return Config{}, fmt.Errorf("input_data: %w", err)
	}
	if c.Output, err = storage.ParseLocation(c.Paths.OutputData); err != nil {
		return Config{}, fmt.Errorf("output_data: %w", err)
	}

	c.AWS.AccessKeyID = strings.TrimSpace(c.AWS.AccessKeyID)
	c.AWS.SecretAccessKey = strings.TrimSpace(c.AWS.SecretAccessKey)
	if c.Input.Kind == storage.KindS3 || c.Output.Kind == storage.KindS3 {
		if c.AWS.AccessKeyID == "" || c.AWS.SecretAccessKey == "" {
			return Config{}, fmt.Errorf("%w: access_key_id and secret_access_key are required for S3 locations", ErrMissingCredentials)
		}
	}

	c.ETL.SongPrefix = normalizePrefix(c.ETL.SongPrefix)
	c.ETL.LogPrefix = normalizePrefix(c.ETL.LogPrefix)
	if c.ETL.SongPrefix == "" || c.ETL.LogPrefix == "" {
		return Config{}, errors.New("song_prefix and log_prefix must not be empty")
	}

	if c.ETL.Workers < 0 {
		return Config{}, fmt.Errorf("workers must not be negative, got %d", c.ETL.Workers)
	}
	if c.ETL.Workers == 0 {
		c.ETL.Workers = runtime.NumCPU() * 2
	}
	if c.ETL.TempDir == "" {
		c.ETL.TempDir = os.TempDir()
	}
	return c, nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
