// Package config loads the IBS Care runtime configuration from an optional
// YAML or JSON file, a .env file and environment variables, and validates it
// once at startup.
package config
