// Package config loads the VCF Operations login document and the optional
// pingkit tool configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Default file locations, preserved from the original deployment so existing
// state and credential files keep working.
const (
	DefaultLoginFile    = "vcf-monitoring-loginData.json"
	DefaultTokenFile    = "vcf-monitoring-accessToken.txt"
	DefaultStateFile    = "ping_enabled_vms.json"
	DefaultScheduleFile = "vcf-monitoring-schedule.json"
	DefaultToolFile     = "pingkit.yaml"
)

// LoginConfig is the parsed login document for a VCF Operations instance.
// LoginData is passed through to the token acquisition endpoint unmodified.
type LoginConfig struct {
	OperationsHost string                 `json:"operationsHost"`
	LoginData      map[string]interface{} `json:"loginData"`
}

// ToolConfig carries pingkit's own settings. All fields have working
// defaults; the YAML file is optional.
type ToolConfig struct {
	LoginFile     string `json:"login_file" yaml:"login_file"`
	TokenFile     string `json:"token_file" yaml:"token_file"`
	StateFile     string `json:"state_file" yaml:"state_file"`
	ScheduleFile  string `json:"schedule_file" yaml:"schedule_file"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	InsecureTLS   bool   `json:"insecure_tls" yaml:"insecure_tls"`
	StatusAPIPort int    `json:"status_api_port" yaml:"status_api_port"`
}

// DefaultToolConfig returns the configuration used when no pingkit.yaml
// exists. TLS verification is disabled by default because VCF Operations
// test environments commonly run with self-signed certificates.
func DefaultToolConfig() *ToolConfig {
	return &ToolConfig{
		LoginFile:     DefaultLoginFile,
		TokenFile:     DefaultTokenFile,
		StateFile:     DefaultStateFile,
		ScheduleFile:  DefaultScheduleFile,
		LogLevel:      "info",
		InsecureTLS:   true,
		StatusAPIPort: 9723,
	}
}

// LoadToolConfig reads the optional tool configuration file. A missing file
// yields defaults; a malformed file is logged and defaults are used.
func LoadToolConfig(path string) *ToolConfig {
	cfg := DefaultToolConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn("Failed to read tool config, using defaults")
		}
		return cfg
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.WithError(err).WithField("path", path).Warn("Malformed tool config, using defaults")
		return DefaultToolConfig()
	}

	cfg.applyDefaults()

	log.WithField("path", path).Debug("Loaded tool configuration")
	return cfg
}

func (c *ToolConfig) applyDefaults() {
	def := DefaultToolConfig()
	if c.LoginFile == "" {
		c.LoginFile = def.LoginFile
	}
	if c.TokenFile == "" {
		c.TokenFile = def.TokenFile
	}
	if c.StateFile == "" {
		c.StateFile = def.StateFile
	}
	if c.ScheduleFile == "" {
		c.ScheduleFile = def.ScheduleFile
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.StatusAPIPort == 0 {
		c.StatusAPIPort = def.StatusAPIPort
	}
}

// LoadLoginConfig reads and validates the login document. Unlike the tool
// config this file is required: without it no token can ever be acquired.
func LoadLoginConfig(path string) (*LoginConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read login config %s: %w", path, err)
	}

	var cfg LoginConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse login config %s: %w", path, err)
	}

	if cfg.OperationsHost == "" {
		return nil, fmt.Errorf("login config %s is missing operationsHost", path)
	}

	log.WithFields(log.Fields{
		"path": path,
		"host": cfg.OperationsHost,
	}).Debug("Loaded login configuration")

	return &cfg, nil
}
