// Package config loads, normalizes, and validates dhgen configuration data.
//
// It supplies repository defaults (including the workflow binding table),
// expands user paths, reads TOML files, and honours environment fallbacks such
// as DHGEN_SERVER. Always obtain settings through this package so downstream
// code receives absolute paths, positive durations and a complete binding
// table.
package config
