// Package version enthält die per -ldflags gesetzten Build-Metadaten.
package version

// Gesetzt beim Build, z.B. -ldflags "-X facegate/internal/version.Version=1.2.0"
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)
