// Package config loads and validates the TOML configuration file, applying
// defaults and clamping TTL values to safe ranges. Portal settings stay
// optional so cache inspection commands work before a portal is configured.
package config
