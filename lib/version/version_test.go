// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFromSettings(t *testing.T) {
	build := Build{Version: "1.0.0"}
	build.fromSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		{Key: "vcs.modified", Value: "true"},
	})
	if build.Commit != "0123456789ab" || build.BuildTime != "2026-01-02T03:04:05Z" || !build.Modified {
		t.Fatalf("build = %+v", build)
	}
	if line := build.String(); !strings.HasPrefix(line, "1.0.0 (0123456789ab-dirty, 2026-01-02T03:04:05Z)") {
		t.Errorf("String() = %q", line)
	}
}

func TestLinkerValuesWin(t *testing.T) {
	build := Build{Commit: "release", BuildTime: "then"}
	build.fromSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "abcdef"},
		{Key: "vcs.time", Value: "now"},
	})
	if build.Commit != "release" || build.BuildTime != "then" {
		t.Errorf("build = %+v", build)
	}
}

func TestCurrent(t *testing.T) {
	build := Current()
	if build.Version == "" || build.Commit == "" || build.Go == "" || build.Platform == "" {
		t.Errorf("Current() = %+v", build)
	}
}
