package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrMissingRequired = goerr.New("required configuration is missing")
	ErrInvalidConfig   = goerr.New("invalid configuration")
)

// Context keys for error values
const (
	FlagKey       = "flag"
	ConfigPathKey = "config_path"
)
