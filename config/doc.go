// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the server settings, the failover
// target pool and cooldown, retry limits and metrics buffering.
package config
