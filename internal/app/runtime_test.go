package app

import "testing"

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "true")
	if !RefreshTestMode() || !InTestMode() {
		t.Fatalf("expected test mode on")
	}

	t.Setenv(TestModeEnv, "0")
	if !InTestMode() {
		t.Fatalf("expected cached value until refresh")
	}
	if RefreshTestMode() || InTestMode() {
		t.Fatalf("expected test mode off")
	}

	t.Setenv(TestModeEnv, "yes please")
	if RefreshTestMode() {
		t.Fatalf("unparseable values must read as off")
	}
}
