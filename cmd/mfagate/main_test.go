package main

import "testing"

func TestBuildVersion(t *testing.T) {
	origVersion, origCommit := version, commit
	t.Cleanup(func() {
		version, commit = origVersion, origCommit
	})

	version, commit = "dev", ""
	if got := buildVersion(); got != "dev" {
		t.Fatalf("buildVersion() = %q, want %q", got, "dev")
	}

	version, commit = "0.2.1", ""
	if got := buildVersion(); got != "0.2.1" {
		t.Fatalf("buildVersion() = %q, want %q", got, "0.2.1")
	}

	version, commit = "0.2.1", "9f31c0d"
	if got := buildVersion(); got != "0.2.1 (9f31c0d)" {
		t.Fatalf("buildVersion() = %q, want %q", got, "0.2.1 (9f31c0d)")
	}
}
