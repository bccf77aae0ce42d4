// Package conf handles the application configuration: defaults, config
// file discovery and environment overrides via viper.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/heatwatch/heatwatch-go/internal/errors"
)

// Settings is the full application configuration.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Database struct {
		// Path is the SQLite database file location.
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Images struct {
		// Dir is where uploaded baseline and maintenance images live.
		Dir string `mapstructure:"dir"`
	} `mapstructure:"images"`

	Detector struct {
		// URL is the base URL of the thermal-anomaly inference service.
		URL string `mapstructure:"url"`
		// DefaultConfidence is the confidence threshold used for analysis
		// when the operator does not choose one.
		DefaultConfidence float64       `mapstructure:"defaultconfidence"`
		Timeout           time.Duration `mapstructure:"timeout"`
	} `mapstructure:"detector"`

	Log struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"log"`
}

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.path", "heatwatch.db")
	viper.SetDefault("images.dir", "images/")

	viper.SetDefault("detector.url", "http://localhost:5000")
	viper.SetDefault("detector.defaultconfidence", 0.50)
	viper.SetDefault("detector.timeout", 60*time.Second)

	viper.SetDefault("log.enabled", true)
	viper.SetDefault("log.path", "heatwatch.log")
}

// Load reads the configuration from defaults, an optional config file and
// HEATWATCH_* environment variables.
func Load() (*Settings, error) {
	setDefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, dir := range configPaths() {
		viper.AddConfigPath(dir)
	}
	viper.SetEnvPrefix("heatwatch")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config").
				Build()
		}
		// No config file is fine; defaults and env cover everything.
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate rejects settings the service cannot start with.
func (s *Settings) Validate() error {
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return errors.Newf("invalid server port %d", s.Server.Port).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Detector.DefaultConfidence < 0.1 || s.Detector.DefaultConfidence > 1.0 {
		return errors.Newf("detector default confidence %.2f outside [0.1, 1.0]", s.Detector.DefaultConfidence).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Database.Path == "" {
		return errors.Newf("database path is required").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// configPaths returns the directories searched for a config file, most
// specific first.
func configPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "heatwatch"))
	}
	paths = append(paths, "/etc/heatwatch")
	return paths
}

// Addr returns the host:port the HTTP server binds to.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Server.Host, s.Server.Port)
}
