// Package config provides centralized configuration management for the
// BondingBot runtime, combining a YAML configuration file with environment
// variable overrides for secrets such as the bot token and the wallet
// encryption key.
package config
