// SPDX-License-Identifier: MIT
//
// Package build carries the build metadata embedded at link time:
//
//	go build -ldflags "-X pitchtrack/pkg/build.buildName=pitchtrack \
//	    -X pitchtrack/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run without ldflags. Initialize then reports which
// values are missing and the defaults stay in place, so the tracker still
// starts and prints "dev" as its version.
package build

import (
	"errors"
	"fmt"
)

// Defaults used when a value was not injected at link time.
const (
	DefaultName        = "pitchtrack"
	DefaultDescription = "Real-time monophonic pitch tracker"
	DefaultVersion     = "dev"
	unknown            = "unknown"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the metadata as a single version line.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:        DefaultName,
		Description: DefaultDescription,
		Time:        unknown,
		Commit:      unknown,
		Version:     DefaultVersion,
	}
}

// Initialize copies every injected value into the build flags. Values that
// were not injected keep their defaults and are reported together in the
// returned error; callers treat that as a warning.
func Initialize() error {
	var missing []error
	if buildName == "" {
		missing = append(missing, errors.New("BuildName is required"))
	} else {
		buildFlags.Name = buildName
	}
	if buildTime == "" {
		missing = append(missing, errors.New("BuildTime is required"))
	} else {
		buildFlags.Time = buildTime
	}
	if buildCommit == "" {
		missing = append(missing, errors.New("BuildCommit is required"))
	} else {
		buildFlags.Commit = buildCommit
	}
	if buildVersion == "" {
		missing = append(missing, errors.New("BuildVersion is required"))
	} else {
		buildFlags.Version = buildVersion
	}
	return errors.Join(missing...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
