// Package config loads, validates, and normalizes clipforge configuration.
//
// Configuration lives in a TOML file. Lookup order: an explicit --config
// path, ~/.config/clipforge/config.toml, then ./clipforge.toml. Missing
// files fall back to repository defaults so the daemon can start with
// zero configuration.
package config
