// Package config loads runtime configuration from file and environment.
//
// Precedence is defaults, then config file (JSON or YAML by extension),
// then SHARDSINK_* environment variables.
package config
