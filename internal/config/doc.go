// Package config provides configuration loading and validation for the
// speech capture service. Settings come from a YAML file layered over
// Default(); secrets and the log level may be overridden from the
// environment, optionally populated from a .env file.
package config
