// Package config provides configuration loading for applications that
// embed the client library.
//
// It uses Viper to load configuration from config.yml and .env files,
// binds environment variables automatically, and unmarshals the result
// into a caller-provided struct.
//
// # Usage
//
//	var cfg MyConfig
//	err := config.LoadConfig("my-service", &cfg)
//
// Environment variables override file values; SYNC_QUEUE_MAX_SIZE binds
// to sync.queue.max_size and similar nested keys.
package config
