package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/parix-analytics/parix-go/pkg/models"
	"github.com/parix-analytics/parix-go/utils"
)

// Config represents the main application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Data          DataConfig          `yaml:"data" json:"data"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts" json:"artifacts"`
	Pipeline      PipelineConfig      `yaml:"pipeline" json:"pipeline"`
	Perturbations []PerturbationRule  `yaml:"perturbations" json:"perturbations"`
	Scheduler     SchedulerConfig     `yaml:"scheduler" json:"scheduler"`
	LLM           LLMConfig           `yaml:"llm" json:"llm"`
	Logging       utils.LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout" json:"read_timeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" json:"write_timeout"` // seconds
}

// DataConfig holds cohort data source configuration
type DataConfig struct {
	CohortCSVPath string `yaml:"cohort_csv_path" json:"cohort_csv_path"`
	DatabasePath  string `yaml:"database_path" json:"database_path"`
}

// ArtifactsConfig holds paths to the frozen model and scaler artifacts
type ArtifactsConfig struct {
	ModelPath  string `yaml:"model_path" json:"model_path"`
	ScalerPath string `yaml:"scaler_path" json:"scaler_path"`
}

// PipelineConfig holds the fixed thresholds and clustering parameters used
// by the feature pipeline
type PipelineConfig struct {
	// Risk bands on the cohort-standardized gap (triage views).
	RiskBandHighZ   float64 `yaml:"risk_band_high_z" json:"risk_band_high_z"`
	RiskBandMediumZ float64 `yaml:"risk_band_medium_z" json:"risk_band_medium_z"`

	// Risk levels on the raw gap (narrative payload).
	RiskLevelHighGap   float64 `yaml:"risk_level_high_gap" json:"risk_level_high_gap"`
	RiskLevelMediumGap float64 `yaml:"risk_level_medium_gap" json:"risk_level_medium_gap"`

	ClusterCount int   `yaml:"cluster_count" json:"cluster_count"`
	ClusterSeed  int64 `yaml:"cluster_seed" json:"cluster_seed"`

	// MaxWorkers bounds the parallel per-student phase. 0 means NumCPU.
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
}

// PerturbationRule maps a lever to the feature delta its counterfactual applies
type PerturbationRule struct {
	Lever   models.Lever `yaml:"lever" json:"lever"`
	Feature string       `yaml:"feature" json:"feature"`
	Delta   float64      `yaml:"delta" json:"delta"`
	Min     float64      `yaml:"min" json:"min"`
	Max     float64      `yaml:"max" json:"max"`
}

// SchedulerConfig holds the scheduled cohort reload configuration
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CronExpr string `yaml:"cron_expr" json:"cron_expr"`
}

// LLMConfig holds narrative-generator client configuration
type LLMConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // openai, mock
	APIKey     string `yaml:"api_key" json:"api_key"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	Model      string `yaml:"model" json:"model"`
	Timeout    int    `yaml:"timeout" json:"timeout"` // seconds
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Data: DataConfig{
			CohortCSVPath: "data/student_data.csv",
			DatabasePath:  "data/parix.db",
		},
		Artifacts: ArtifactsConfig{
			ModelPath:  "models/exam_model.json",
			ScalerPath: "models/scaler.json",
		},
		Pipeline: PipelineConfig{
			RiskBandHighZ:      -0.9,
			RiskBandMediumZ:    -0.5,
			RiskLevelHighGap:   -1.0,
			RiskLevelMediumGap: -0.5,
			ClusterCount:       4,
			ClusterSeed:        42,
			MaxWorkers:         0,
		},
		Perturbations: DefaultPerturbations(),
		Scheduler: SchedulerConfig{
			Enabled:  false,
			CronExpr: "0 6 * * 1", // weekly, Monday 06:00
		},
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			Timeout:    30,
			MaxRetries: 2,
		},
		Logging: utils.LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPerturbations returns the fixed per-lever counterfactual deltas
func DefaultPerturbations() []PerturbationRule {
	return []PerturbationRule{
		{Lever: models.LeverSleepOptimization, Feature: models.FeatureSleepHours, Delta: 1.5, Min: 4, Max: 10},
		{Lever: models.LeverTutoringSupport, Feature: models.FeatureTutoringSessions, Delta: 2, Min: 0, Max: 8},
		{Lever: models.LeverResourceAccess, Feature: models.FeatureAccessToResources, Delta: 1, Min: 0, Max: 2},
		{Lever: models.LeverMotivationCoaching, Feature: models.FeatureMotivationLevel, Delta: 1, Min: 0, Max: 2},
		{Lever: models.LeverStudyEfficiency, Feature: models.FeatureHoursStudied, Delta: 3, Min: 1, Max: 44},
	}
}

// LoadConfig loads configuration from an optional YAML file and applies
// environment variable overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pipeline.ClusterCount < 1 {
		return fmt.Errorf("cluster_count must be at least 1, got %d", c.Pipeline.ClusterCount)
	}
	if c.Pipeline.RiskBandHighZ > c.Pipeline.RiskBandMediumZ {
		return fmt.Errorf("risk_band_high_z (%.2f) must not exceed risk_band_medium_z (%.2f)",
			c.Pipeline.RiskBandHighZ, c.Pipeline.RiskBandMediumZ)
	}
	if c.Pipeline.RiskLevelHighGap > c.Pipeline.RiskLevelMediumGap {
		return fmt.Errorf("risk_level_high_gap (%.2f) must not exceed risk_level_medium_gap (%.2f)",
			c.Pipeline.RiskLevelHighGap, c.Pipeline.RiskLevelMediumGap)
	}
	seen := make(map[models.Lever]bool)
	for _, rule := range c.Perturbations {
		if rule.Feature == "" {
			return fmt.Errorf("perturbation for lever %q has no feature", rule.Lever)
		}
		if rule.Min > rule.Max {
			return fmt.Errorf("perturbation for lever %q has min > max", rule.Lever)
		}
		if seen[rule.Lever] {
			return fmt.Errorf("duplicate perturbation rule for lever %q", rule.Lever)
		}
		seen[rule.Lever] = true
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides on top of the
// file-based configuration
func applyEnvOverrides(c *Config) {
	c.Server.Host = getEnv("PARIX_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("PARIX_PORT", c.Server.Port)
	c.Data.CohortCSVPath = getEnv("PARIX_DATA_PATH", c.Data.CohortCSVPath)
	c.Data.DatabasePath = getEnv("PARIX_DB_PATH", c.Data.DatabasePath)
	c.Artifacts.ModelPath = getEnv("PARIX_MODEL_PATH", c.Artifacts.ModelPath)
	c.Artifacts.ScalerPath = getEnv("PARIX_SCALER_PATH", c.Artifacts.ScalerPath)
	c.LLM.APIKey = getEnv("PARIX_LLM_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("PARIX_LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Provider = getEnv("PARIX_LLM_PROVIDER", c.LLM.Provider)
	c.Logging.Level = getEnv("PARIX_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("PARIX_LOG_FORMAT", c.Logging.Format)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
