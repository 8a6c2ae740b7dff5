package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func withBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
	t.Cleanup(func() { readBuildInfo = orig })
}

func TestGet_FromVCSStamp(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	info := Get()
	if info.Version != "1.4.0" {
		t.Errorf("expected 1.4.0, got %s", info.Version)
	}
	if info.Commit != "0123456789abcdef0123" || info.BuildDate != "2024-05-01T10:00:00Z" {
		t.Errorf("unexpected vcs metadata %+v", info)
	}
	if info.String() != "1.4.0-dirty" {
		t.Errorf("expected dirty suffix, got %s", info.String())
	}
	if full := Full(); !strings.Contains(full, "Commit:     0123456789ab\n") {
		t.Errorf("expected shortened commit in:\n%s", full)
	}
}

func TestGet_LdflagsWin(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v9.9.9"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "fromvcs"}},
	})
	origV, origC := Version, Commit
	Version, Commit = "2.0.0", "fromldflags"
	t.Cleanup(func() { Version, Commit = origV, origC })

	info := Get()
	if info.Version != "2.0.0" || info.Commit != "fromldflags" {
		t.Errorf("expected ldflags values, got %+v", info)
	}
}

func TestGet_NoBuildInfo(t *testing.T) {
	withBuildInfo(t, nil)
	info := Get()
	if info.Version != "dev" || info.Commit != "unknown" || info.BuildDate != "unknown" {
		t.Errorf("unexpected defaults %+v", info)
	}
	if !strings.HasPrefix(Full(), "bidharvest dev\n") {
		t.Errorf("unexpected Full():\n%s", Full())
	}
}
