package compileinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFromBuildInfo(t *testing.T) {
	info := fromBuildInfo(&debug.BuildInfo{
		GoVersion: "go1.18",
		Path:      "github.com/carbocation/rasterval/cmd/rasterval",
		Main:      debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2022-05-01T00:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	if info.Commit != "abc123" || !info.Modified {
		t.Fatalf("unexpected %+v", info)
	}

	s := info.String()
	for _, want := range []string{"cmd/rasterval", "go1.18", "abc123", "modified"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q does not mention %q", s, want)
		}
	}
	if strings.Contains(s, "(devel)") {
		t.Errorf("%q should not print the devel version", s)
	}
}

func TestEmpty(t *testing.T) {
	if s := (CompileInfo{}).String(); !strings.Contains(s, "not available") {
		t.Errorf("got %q", s)
	}
}
