package config

// Build metadata injected by the linker:
//
//	go build -ldflags "-X tripwise/internal/config.version=1.2.3 \
//	    -X tripwise/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X tripwise/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Local builds without ldflags keep the placeholder defaults.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo snapshots the linker variables into a BuildInfo. Called once
// at startup to fill Config.Build.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
