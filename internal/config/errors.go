package config

import (
	"errors"
)

// Error kinds returned by Load and Validate.
var (
	ErrInvalidConfig   = errors.New("invalid config")
	ErrLoadConfig      = errors.New("load config failed")
	ErrUnsupportedFile = errors.New("unsupported config file type")
)
