// Package character resolves named character bundles on disk.
//
// A character is a directory under the configured root holding one reference
// audio clip, one or more reference visuals (image or video) and an optional
// config.json bag. The Resolver validates directories, picks the audio/visual
// pair, guards every lookup against path traversal, and caches resolved assets
// for a bounded time keyed on directory modification times.
package character
