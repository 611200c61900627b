package main

import (
	"runtime"

	"github.com/inferloop/modelregistry/internal/api/handlers"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
	Platform  = runtime.GOOS + "/" + runtime.GOARCH
)

func GetBuildInfo() handlers.BuildInfo {
	return handlers.NewBuildInfo(Version, GitCommit, BuildDate)
}
