package model

import "testing"

func TestParseVersionValid(t *testing.T) {
	v, err := ParseVersion("1.2.3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "1.2.3" {
		t.Errorf("String() = %s, want 1.2.3", v.String())
	}
}

func TestParseVersionRejectsLeadingZero(t *testing.T) {
	cases := []string{"01.2.3", "1.02.3", "1.2.03", "1.2", "a.b.c", "-1.0.0"}
	for _, c := range cases {
		if _, err := ParseVersion(c); err == nil {
			t.Errorf("expected error for invalid version %q", c)
		}
	}
}

func TestFilterTypeAllNeverExcludesOnType(t *testing.T) {
	models := []Info{{ID: "a", Type: TypeLLM}, {ID: "b", Type: TypeSTT}, {ID: "c", Type: TypeTTS}}
	got := Filter(models, TypeAll, DeviceCapabilities{})
	if len(got) != len(models) {
		t.Errorf("expected all models to pass with TypeAll, got %d", len(got))
	}
}

func TestFilterSpecificTypeOnlyThatType(t *testing.T) {
	models := []Info{{ID: "a", Type: TypeLLM}, {ID: "b", Type: TypeSTT}}
	got := Filter(models, TypeLLM, DeviceCapabilities{})
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("expected only LLM model, got %+v", got)
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	models := []Info{
		{ID: "a", Type: TypeLLM, Requirements: Requirements{MinRAMBytes: 8 << 30}},
		{ID: "b", Type: TypeSTT, Requirements: Requirements{SupportedPlatforms: []string{"linux"}}},
	}
	device := DeviceCapabilities{RAMBytes: 4 << 30, Platform: "darwin"}

	once := Filter(models, TypeAll, device)
	twice := Filter(once, TypeAll, device)
	if len(once) != len(twice) {
		t.Fatalf("filter not idempotent: %d != %d", len(once), len(twice))
	}
}

func TestFilterEmptyPlatformSetIsUniversal(t *testing.T) {
	models := []Info{{ID: "a", Type: TypeLLM}}
	got := Filter(models, TypeAll, DeviceCapabilities{Platform: "exotic-os"})
	if len(got) != 1 {
		t.Errorf("expected empty platform set to be universally compatible")
	}
}

func TestFilterExcludesInsufficientRAM(t *testing.T) {
	models := []Info{{ID: "a", Type: TypeLLM, Requirements: Requirements{MinRAMBytes: 16 << 30}}}
	got := Filter(models, TypeAll, DeviceCapabilities{RAMBytes: 8 << 30})
	if len(got) != 0 {
		t.Errorf("expected model requiring more RAM than device has to be excluded")
	}
}

func TestFilterExcludesUnsupportedPlatform(t *testing.T) {
	models := []Info{{ID: "a", Type: TypeLLM, Requirements: Requirements{SupportedPlatforms: []string{"linux"}}}}
	got := Filter(models, TypeAll, DeviceCapabilities{Platform: "windows"})
	if len(got) != 0 {
		t.Errorf("expected model unsupported on this platform to be excluded")
	}
	gotWildcard := Filter(
		[]Info{{ID: "b", Type: TypeLLM, Requirements: Requirements{SupportedPlatforms: []string{"all"}}}},
		TypeAll, DeviceCapabilities{Platform: "windows"},
	)
	if len(gotWildcard) != 1 {
		t.Errorf("expected wildcard platform \"all\" to always match")
	}
}
