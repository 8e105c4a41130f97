// Package config holds the configuration surface for breachmon.
//
// Configuration is assembled once at startup from CLI flags and an
// optional YAML sources file, validated, and then passed down to
// components by explicit dependency injection. No package reads
// configuration from global state at runtime.
package config
