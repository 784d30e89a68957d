package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aeroml/flightdelay/utils"
	"gopkg.in/yaml.v3"
)

// Config holds the full pipeline configuration
type Config struct {
	Data      DataConfig          `yaml:"data"`
	Split     SplitConfig         `yaml:"split"`
	Training  TrainingConfig      `yaml:"training"`
	Storage   StorageConfig       `yaml:"storage"`
	Logging   utils.LoggingConfig `yaml:"logging"`
	Inference InferenceConfig     `yaml:"inference"`
}

// DataConfig locates the input flight records
type DataConfig struct {
	Path    string `yaml:"path"`
	MaxRows int    `yaml:"max_rows,omitempty"` // 0 = no cap
}

// SplitConfig controls the train/test partition
type SplitConfig struct {
	TrainFraction float64 `yaml:"train_fraction"`
	Seed          int64   `yaml:"seed"`
}

// TrainingConfig controls model training
type TrainingConfig struct {
	Folds         int      `yaml:"folds"`
	Seed          int64    `yaml:"seed"`
	SubsampleRows int      `yaml:"subsample_rows"`
	Families      []string `yaml:"families,omitempty"`
	Threshold     float64  `yaml:"threshold"`
}

// StorageConfig controls the run-report store and on-disk artifacts
type StorageConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	EncoderPath string `yaml:"encoder_path"`
	ReportPath  string `yaml:"report_path,omitempty"` // empty = no JSON report file
}

// InferenceConfig optionally scores one unseen flight after training
type InferenceConfig struct {
	Enabled bool        `yaml:"enabled"`
	Record  FlightInput `yaml:"record"`
}

// FlightInput is the raw form of a single flight to score
type FlightInput struct {
	Carrier     string  `yaml:"carrier"`
	Origin      string  `yaml:"origin"`
	Destination string  `yaml:"destination"`
	TaxiIn      float64 `yaml:"taxi_in"`
	TaxiOut     float64 `yaml:"taxi_out"`
	AirTime     float64 `yaml:"air_time"`
	Distance    float64 `yaml:"distance"`
	Date        string  `yaml:"date"` // YYYY-MM-DD
	DepTime     string  `yaml:"dep_time"`
	ArrTime     string  `yaml:"arr_time"`
}

// KnownFamilies are the model families the pipeline can train
var KnownFamilies = []string{"elastic_net_logistic", "random_forest", "gradient_boosting"}

// DefaultConfig returns the configuration used when fields are omitted
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{},
		Split: SplitConfig{
			TrainFraction: 0.7,
			Seed:          42,
		},
		Training: TrainingConfig{
			Folds:         10,
			Seed:          42,
			SubsampleRows: 10000,
			Families:      append([]string{}, KnownFamilies...),
			Threshold:     0.5,
		},
		Storage: StorageConfig{
			Enabled:     true,
			Path:        "flightdelay_runs.db",
			EncoderPath: "encoder.json",
		},
		Logging: utils.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the YAML configuration file and applies environment
// overrides and defaults. An empty path loads defaults plus environment
// overrides only. Callers that run the pipeline must Validate the result;
// read-only commands like listing stored runs do not.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides lets the environment override file values
func applyEnvOverrides(cfg *Config) {
	cfg.Data.Path = getEnv("FLIGHTDELAY_DATA_PATH", cfg.Data.Path)
	cfg.Data.MaxRows = getEnvAsInt("FLIGHTDELAY_MAX_ROWS", cfg.Data.MaxRows)
	cfg.Split.Seed = getEnvAsInt64("FLIGHTDELAY_SPLIT_SEED", cfg.Split.Seed)
	cfg.Training.Seed = getEnvAsInt64("FLIGHTDELAY_TRAINING_SEED", cfg.Training.Seed)
	cfg.Training.Folds = getEnvAsInt("FLIGHTDELAY_CV_FOLDS", cfg.Training.Folds)
	cfg.Storage.Path = getEnv("FLIGHTDELAY_DB_PATH", cfg.Storage.Path)
	cfg.Logging.Level = getEnv("FLIGHTDELAY_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("FLIGHTDELAY_LOG_FORMAT", cfg.Logging.Format)
}

// applyDefaults restores zero-valued fields a partial YAML file left unset
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Split.TrainFraction == 0 {
		cfg.Split.TrainFraction = def.Split.TrainFraction
	}
	if cfg.Training.Folds == 0 {
		cfg.Training.Folds = def.Training.Folds
	}
	if cfg.Training.SubsampleRows == 0 {
		cfg.Training.SubsampleRows = def.Training.SubsampleRows
	}
	if len(cfg.Training.Families) == 0 {
		cfg.Training.Families = append([]string{}, KnownFamilies...)
	}
	if cfg.Training.Threshold == 0 {
		cfg.Training.Threshold = def.Training.Threshold
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = def.Storage.Path
	}
	if cfg.Storage.EncoderPath == "" {
		cfg.Storage.EncoderPath = def.Storage.EncoderPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = def.Logging.Output
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Data.Path == "" {
		return fmt.Errorf("data.path is required (or set FLIGHTDELAY_DATA_PATH)")
	}
	if c.Split.TrainFraction <= 0 || c.Split.TrainFraction >= 1 {
		return fmt.Errorf("split.train_fraction must be in (0, 1), got %v", c.Split.TrainFraction)
	}
	if c.Training.Folds < 2 {
		return fmt.Errorf("training.folds must be at least 2, got %d", c.Training.Folds)
	}
	if c.Training.SubsampleRows < 1 {
		return fmt.Errorf("training.subsample_rows must be positive, got %d", c.Training.SubsampleRows)
	}
	if c.Training.Threshold <= 0 || c.Training.Threshold >= 1 {
		return fmt.Errorf("training.threshold must be in (0, 1), got %v", c.Training.Threshold)
	}
	for _, fam := range c.Training.Families {
		if !isKnownFamily(fam) {
			return fmt.Errorf("unknown model family %q (known: %s)", fam, strings.Join(KnownFamilies, ", "))
		}
	}
	return nil
}

func isKnownFamily(name string) bool {
	for _, f := range KnownFamilies {
		if f == name {
			return true
		}
	}
	return false
}

// getEnv gets an environment variable with a fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a fallback default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsInt64 gets an environment variable as int64 with a fallback default
func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
