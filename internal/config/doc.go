// Package config loads, normalizes, and validates the convertd YAML
// configuration. Validation is strict: values outside their allowlists or
// bounds produce a ValidationError and abort startup.
package config
