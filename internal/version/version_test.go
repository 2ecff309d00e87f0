package version

import "testing"

func TestString(t *testing.T) {
	Version, Commit, BuildTime = "1.2.3", "abc123", "2026-01-02T03:04:05Z"
	defer func() { Version, Commit, BuildTime = "dev", "unknown", "unknown" }()

	if got, want := String(), "1.2.3 (abc123) built 2026-01-02T03:04:05Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := Get(); got.Version != "1.2.3" || got.Commit != "abc123" {
		t.Errorf("Get() = %+v", got)
	}
}
