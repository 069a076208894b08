// SPDX-License-Identifier: MIT
//
// Package build holds the metadata embedded into the binary at link time:
//
//	go build -ldflags "-X .../pkg/build.buildVersion=0.3.0 -X .../pkg/build.buildCommit=$(git rev-parse --short HEAD)"
//
// Unset values fall back to development defaults, so `go run` works without
// any flags. Initialize reports which values were missing.
package build

import (
	"errors"
	"fmt"
	"runtime"
)

const (
	DefaultName = "voice-analyzer"
	Description = "Real-time pitch and formant analysis of a voice input"
	unknown     = "unknown"
)

// ErrMissingFlag is returned by Initialize for every unset link-time value.
var ErrMissingFlag = errors.New("build flag not set")

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String returns a one-line version banner.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s/%s)",
		i.Name, i.Version, i.Commit, i.Time, runtime.GOOS, runtime.GOARCH)
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = defaults()
)

func defaults() *Info {
	return &Info{
		Name:        DefaultName,
		Description: Description,
		Time:        unknown,
		Commit:      unknown,
		Version:     "dev",
	}
}

// Initialize copies the link-time values into the build info. Values that
// were not set keep their defaults and are joined into the returned error.
func Initialize() error {
	info := defaults()
	var errs []error
	set := func(dst *string, v, flag string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingFlag, flag))
			return
		}
		*dst = v
	}
	set(&info.Name, buildName, "buildName")
	set(&info.Time, buildTime, "buildTime")
	set(&info.Commit, buildCommit, "buildCommit")
	set(&info.Version, buildVersion, "buildVersion")

	buildInfo = info
	return errors.Join(errs...)
}

// GetBuildFlags returns the current build info.
func GetBuildFlags() *Info {
	return buildInfo
}
