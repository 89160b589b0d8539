package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// RelayConfig describes the target relay and credentials.
type RelayConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port,omitempty"`
	Secure           bool   `yaml:"secure,omitempty"`
	IgnoreTLS        bool   `yaml:"ignore_tls,omitempty"`
	RequireTLS       bool   `yaml:"require_tls,omitempty"`
	OpportunisticTLS bool   `yaml:"opportunistic_tls,omitempty"`
	LMTP             bool   `yaml:"lmtp,omitempty"`
	Name             string `yaml:"name,omitempty"`
	LocalAddr        string `yaml:"local_addr,omitempty"`
	ProxyURL         string `yaml:"proxy_url,omitempty"`

	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	AuthMethod  string `yaml:"auth_method,omitempty"`
	Domain      string `yaml:"domain,omitempty"`
	Workstation string `yaml:"workstation,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"` // "info" or "debug"
}

// LoadConfig reads a RelayConfig from a YAML file.
func LoadConfig(path string) (*RelayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg RelayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
