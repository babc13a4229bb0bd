package models

import "testing"

func TestByID(t *testing.T) {
	m, ok := ByID("google/gemini-2.5-flash")
	if !ok {
		t.Fatal("expected gemini in catalog")
	}
	if !m.SupportsVision {
		t.Error("gemini should support vision")
	}

	if _, ok := ByID("nope/nothing"); ok {
		t.Error("unknown model should not resolve")
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("moonshotai/kimi-k2"); got != "Kimi K2" {
		t.Errorf("DisplayName = %q, want Kimi K2", got)
	}
	if got := DisplayName("custom/model"); got != "custom/model" {
		t.Errorf("unknown model should fall back to raw id, got %q", got)
	}
}

func TestSupportsVision(t *testing.T) {
	if SupportsVision("moonshotai/kimi-k2") {
		t.Error("kimi should not report vision")
	}
	if SupportsVision("unknown/model") {
		t.Error("unknown model should not report vision")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultModel},
		{"moonshot-v1-8k", DefaultModel},
		{"moonshot/moonshot-v1-8k", DefaultModel},
		{"z-ai/glm-4.7", "z-ai/glm-4.7"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
