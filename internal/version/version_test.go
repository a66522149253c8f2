package version

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, buildTime
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime
	})
}

func TestLdflagsTakePrecedence(t *testing.T) {
	withBuildVars(t, "v1.4.0", "0123456789abcdef", "2026-03-01T12:00:00Z")

	assert.Equal(t, "v1.4.0", GetVersion())
	assert.Equal(t, "0123456789abcdef", GetGitCommit())
	assert.Equal(t, "v1.4.0 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())

	info := GetBuildInfo()
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)

	detailed := GetDetailedVersion()
	assert.True(t, strings.HasPrefix(detailed, "Version: v1.4.0\n"))
	assert.Contains(t, detailed, "Built: 2026-03-01T12:00:00Z")
}

func TestDevBuild(t *testing.T) {
	withBuildVars(t, "dev", "unknown", "unknown")

	v := GetVersion()
	assert.True(t, v == "dev" || strings.HasPrefix(v, "dev-") || strings.HasPrefix(v, "v"), v)
	assert.NotEmpty(t, GetShortVersion())
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("yesterday").IsZero())
	assert.Equal(t, 2026, parseBuildTime("2026-01-02 03:04:05").Year())
	assert.Equal(t, 5, parseBuildTime("2026-01-02T03:04:05").Second())
}
