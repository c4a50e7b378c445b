package instance

import "testing"

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv(envInstanceID, "api-7")
	if got := GetID(); got != "api-7" {
		t.Fatalf("expected api-7, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv(envInstanceID, "")
	if GetID() == "" {
		t.Fatal("expected a non-empty fallback id")
	}
}
