// Package version provides build and version information for ragflow.
package version

// Version is the current release version of ragflow.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/Ekorz-boop/ragflow/internal/version.Version=x.y.z"
var Version = "0.3.0"
