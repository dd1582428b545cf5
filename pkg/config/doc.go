// Package config loads typed configuration structs.
//
// Load reads environment variables (after a one-time .env load via godotenv)
// into structs tagged for caarlos0/env and caches the result per type. Every
// package in this module owns its own Config struct, so services compose their
// configuration from independent pieces:
//
//	var pgCfg pg.Config
//	config.MustLoad(&pgCfg)
//
// LoadYAML decodes static catalog files, such as the digest configuration
// catalog read by notifyd at startup.
package config
