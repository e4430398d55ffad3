// Package config loads and merges sgptr configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (CACHE_PATH, CACHE_LENGTH, API_HOST, etc.)
//  3. Config file ($XDG_CONFIG_HOME/sgptr/.sgptrc), one KEY=VALUE per line
//  4. Built-in defaults
//
// Use [Load] to obtain a merged [Config], [Save] to write the config file,
// and [SetField] to update a single key.
package config
