// Package config loads, normalizes, and validates bilisub configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and exposes typed accessors for the runner's timing knobs. The
// batch CLI and the service daemon both obtain settings through this package
// so paths, formats, and language lists are sanitized in one place.
//
// Platform credentials are deliberately absent: they travel with each request
// (or come from the environment for the CLI) and are never written to disk.
package config
