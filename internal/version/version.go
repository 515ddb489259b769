// Package version holds the devmind build version.
package version

// Version is the current devmind version. Overridden at build time via
// -ldflags "-X devmind/internal/version.Version=...".
var Version = "0.3.0"
