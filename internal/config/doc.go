// Package config loads, normalizes, and validates quill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads .env files from the working directory
// and the dataset root, and honours environment fallbacks such as
// OPENAI_API_KEY and OPENROUTER_API_KEY.
//
// Service credentials are optional at load time; commands that talk to a
// service call RequireTranscription or RequireCleanup before starting work.
package config
