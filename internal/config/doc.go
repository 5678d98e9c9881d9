// Package config loads and validates the inkstream server configuration.
//
// The configuration lives in a single YAML file under a `server:` key.
// Load(path) parses it, fills defaults, and validates. Secrets (the token
// signing key, the AI provider API key) are never stored in the file itself;
// the file names environment variables via `*_env` keys and the accessors
// resolve them at call time.
//
// Watch(ctx, path, onChange) re-loads the file on every write so the log
// level can be retuned without a restart.
package config
