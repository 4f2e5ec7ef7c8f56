// Package config loads and validates client configuration from JSON
// files. Secrets are never stored in the file; the config names an
// environment variable and Secret resolves it at connect time.
package config
