package util

import "runtime"

// 通过 -ldflags "-X meet-your-new-client/pkg/util.version=..." 注入
var (
	version   = "dev"
	gitCommit = ""
	buildDate = ""
)

type Version struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func GetVersion() Version {
	return Version{
		Version:   version,
		GitCommit: gitCommit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
