// Package config loads, normalizes, and validates videorag configuration.
//
// It supplies defaults for the frame budget and captioning backend, expands
// user paths, reads TOML files and honours the OPENAI_API_KEY environment
// fallback. Validation failures are configuration errors: they surface
// before any video is touched.
package config
