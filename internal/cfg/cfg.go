package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"pervious-predictor/internal/common"
	"pervious-predictor/internal/ml"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ListenAddr            string
	LogLevel              string
	LogFormat             string
	RegistryPath          string
	Strength              ml.ArtifactPaths
	Permeability          ml.ArtifactPaths
	PlotFormat            string
	PlotWidth             float64
	PlotHeight            float64
	ContributionThreshold float64
	RequestTimeout        time.Duration
}

type ConfigFile struct {
	Server struct {
		ListenAddr     string `yaml:"listenAddr"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Registry struct {
		Path string `yaml:"path"`
	} `yaml:"registry"`

	Variants struct {
		Strength     ml.ArtifactPaths `yaml:"strength"`
		Permeability ml.ArtifactPaths `yaml:"permeability"`
	} `yaml:"variants"`

	Plot struct {
		Format                string  `yaml:"format"`
		Width                 float64 `yaml:"width"`
		Height                float64 `yaml:"height"`
		ContributionThreshold float64 `yaml:"contributionThreshold"`
	} `yaml:"plot"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		timeout = common.DefaultRequestTimeout * time.Second
	}

	// Environment variables override the file
	settings := Settings{
		ListenAddr:   getEnvOrDefault(common.EnvListenAddr, orDefault(config.Server.ListenAddr, common.DefaultListenAddr)),
		LogLevel:     getEnvOrDefault(common.EnvLogLevel, orDefault(config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:    getEnvOrDefault(common.EnvLogFormat, orDefault(config.Logging.Format, common.DefaultLogFormat)),
		RegistryPath: getEnvOrDefault(common.EnvRegistryPath, config.Registry.Path),
		Strength: ml.ArtifactPaths{
			Model:  getEnvOrDefault(common.EnvStrengthModelPath, orDefault(config.Variants.Strength.Model, common.DefaultStrengthModelPath)),
			Scaler: getEnvOrDefault(common.EnvStrengthScalerPath, orDefault(config.Variants.Strength.Scaler, common.DefaultStrengthScalerPath)),
			Schema: getEnvOrDefault(common.EnvStrengthSchemaPath, config.Variants.Strength.Schema),
		},
		Permeability: ml.ArtifactPaths{
			Model:  getEnvOrDefault(common.EnvPermeabilityModelPath, orDefault(config.Variants.Permeability.Model, common.DefaultPermeabilityModelPath)),
			Scaler: getEnvOrDefault(common.EnvPermeabilityScaler, orDefault(config.Variants.Permeability.Scaler, common.DefaultPermeabilityScaler)),
			Schema: getEnvOrDefault(common.EnvPermeabilitySchema, config.Variants.Permeability.Schema),
		},
		PlotFormat:            getEnvOrDefault(common.EnvPlotFormat, orDefault(config.Plot.Format, common.DefaultPlotFormat)),
		PlotWidth:             getFloatFromEnvOrConfig(common.EnvPlotWidth, config.Plot.Width, common.DefaultPlotWidth),
		PlotHeight:            getFloatFromEnvOrConfig(common.EnvPlotHeight, config.Plot.Height, common.DefaultPlotHeight),
		ContributionThreshold: getFloatFromEnvOrConfig(common.EnvContributionThreshold, config.Plot.ContributionThreshold, common.DefaultContributionThreshold),
		RequestTimeout:        getDurationOrDefault(common.EnvRequestTimeout, timeout),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ListenAddr:   getEnvOrDefault(common.EnvListenAddr, common.DefaultListenAddr),
		LogLevel:     getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:    getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		RegistryPath: os.Getenv(common.EnvRegistryPath), // optional
		Strength: ml.ArtifactPaths{
			Model:  getEnvOrDefault(common.EnvStrengthModelPath, common.DefaultStrengthModelPath),
			Scaler: getEnvOrDefault(common.EnvStrengthScalerPath, common.DefaultStrengthScalerPath),
			Schema: os.Getenv(common.EnvStrengthSchemaPath),
		},
		Permeability: ml.ArtifactPaths{
			Model:  getEnvOrDefault(common.EnvPermeabilityModelPath, common.DefaultPermeabilityModelPath),
			Scaler: getEnvOrDefault(common.EnvPermeabilityScaler, common.DefaultPermeabilityScaler),
			Schema: os.Getenv(common.EnvPermeabilitySchema),
		},
		PlotFormat:            getEnvOrDefault(common.EnvPlotFormat, common.DefaultPlotFormat),
		PlotWidth:             getFloatOrDefault(common.EnvPlotWidth, common.DefaultPlotWidth),
		PlotHeight:            getFloatOrDefault(common.EnvPlotHeight, common.DefaultPlotHeight),
		ContributionThreshold: getFloatOrDefault(common.EnvContributionThreshold, common.DefaultContributionThreshold),
		RequestTimeout:        getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestTimeout*time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// Paths returns the artifact locations of a variant.
func (s *Settings) Paths(variant string) (ml.ArtifactPaths, error) {
	switch variant {
	case common.VariantStrength:
		return s.Strength, nil
	case common.VariantPermeability:
		return s.Permeability, nil
	default:
		return ml.ArtifactPaths{}, fmt.Errorf("unknown variant %q", variant)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// bare numbers are seconds
		if s, err := strconv.Atoi(v); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs range validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}
	if settings.LogFormat != "console" && settings.LogFormat != "json" {
		return fmt.Errorf("log format must be console or json, got %q", settings.LogFormat)
	}

	// Validate artifact paths
	for variant, paths := range map[string]ml.ArtifactPaths{
		common.VariantStrength:     settings.Strength,
		common.VariantPermeability: settings.Permeability,
	} {
		if paths.Model == "" || paths.Scaler == "" {
			return fmt.Errorf("%s: model and scaler paths are required", variant)
		}
	}

	// Validate plot parameters
	if settings.PlotFormat != "png" && settings.PlotFormat != "svg" {
		return fmt.Errorf("plot format must be png or svg, got %q", settings.PlotFormat)
	}
	if settings.PlotWidth < 5 || settings.PlotWidth > 100 {
		return fmt.Errorf("plot width must be between 5 and 100 cm, got %f", settings.PlotWidth)
	}
	if settings.PlotHeight < 2 || settings.PlotHeight > 50 {
		return fmt.Errorf("plot height must be between 2 and 50 cm, got %f", settings.PlotHeight)
	}
	if settings.ContributionThreshold < 0 || settings.ContributionThreshold >= 1 {
		return fmt.Errorf("contribution threshold must be in [0, 1), got %f", settings.ContributionThreshold)
	}

	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 5m, got %v", settings.RequestTimeout)
	}

	return nil
}
