package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/chronofile/tsdb/internal/logger"
)

// Config represents the tsdb configuration file
// (~/.config/tsdb/config.yaml). CLI flags win over config values.
type Config struct {
	DataDir       string `yaml:"data_dir"`
	ServerAddress string `yaml:"server_address"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tsdb", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config when the file is
// missing or unreadable.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyServeConfig fills serve command variables from the config file when
// the corresponding flag was not set on the command line.
func applyServeConfig(c *cli.Command, cfg Config, addr, dataDir, logLevel, logFormat *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.DataDir != "" && !c.IsSet("data-dir") {
		*dataDir = cfg.DataDir
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		*logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		*logFormat = cfg.LogFormat
	}
}

// buildLogger maps the log_format/log_level settings onto a logger.
func buildLogger(w io.Writer, format, level string) logger.Logger {
	lvl := logger.ParseLevel(level)
	switch format {
	case "json":
		return logger.JSON(w, lvl)
	case "pretty":
		return logger.Pretty(w, lvl)
	default:
		return logger.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
}
