// Package config loads totml configuration from YAML (or JSON) files with
// TOTML_* environment overrides, and validates it.
package config
