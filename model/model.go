// Package model defines the data types shared across the Model Manager,
// Manifest Store, and inference engines (spec.md §3).
package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Type identifies a model's family.
type Type string

const (
	TypeLLM Type = "LLM"
	TypeSTT Type = "STT"
	TypeTTS Type = "TTS"
	TypeAll Type = "All"
)

// Version is a restricted semver: MAJOR.MINOR.PATCH, non-negative
// integers, no leading zeros (spec.md §3, §8 property 12).
type Version struct {
	Major, Minor, Patch int
}

var versionPattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)$`)

// ParseVersion validates and parses a version string per the semver
// (restricted) rule in the GLOSSARY. An invalid version is rejected.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q: must be MAJOR.MINOR.PATCH with no leading zeros", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Requirements gates installation/filtering by device capability.
type Requirements struct {
	MinRAMBytes        int64    `yaml:"min_ram_bytes"`
	MinStorageBytes    int64    `yaml:"min_storage_bytes"`
	SupportedPlatforms []string `yaml:"supported_platforms"`
}

// SupportsPlatform reports whether platform is allowed. An empty set, or
// the literal wildcard "all", means universal compatibility.
func (r Requirements) SupportsPlatform(platform string) bool {
	if len(r.SupportedPlatforms) == 0 {
		return true
	}
	for _, p := range r.SupportedPlatforms {
		if p == "all" || strings.EqualFold(p, platform) {
			return true
		}
	}
	return false
}

// Info describes a model, whether remote or locally installed (spec.md §3).
type Info struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Type           Type              `yaml:"type"`
	Version        string            `yaml:"version"`
	SizeBytes      int64             `yaml:"size_bytes"`
	DownloadURL    string            `yaml:"download_url"`
	ChecksumSHA256 string            `yaml:"checksum_sha256"`
	Metadata       map[string]string `yaml:"metadata"`
	Requirements   Requirements      `yaml:"requirements"`
}

// DownloadTimestamp returns the metadata field set at install time, or
// empty string if the model has never been installed.
func (i Info) DownloadTimestamp() string {
	return i.Metadata["download_timestamp"]
}

// DeviceCapabilities is a snapshot of the host's resources, taken once at
// startup and used only for filtering (spec.md §3).
type DeviceCapabilities struct {
	RAMBytes     int64
	StorageBytes int64
	Platform     string
	Accelerators []string
}

// Filter applies the deterministic, idempotent filtering policy of
// spec.md §4.5 to a slice of Info, given a type filter and device.
func Filter(models []Info, typeFilter Type, device DeviceCapabilities) []Info {
	out := make([]Info, 0, len(models))
	for _, m := range models {
		if included(m, typeFilter, device) {
			out = append(out, m)
		}
	}
	return out
}

func included(m Info, typeFilter Type, device DeviceCapabilities) bool {
	if typeFilter != TypeAll && m.Type != typeFilter {
		return false
	}
	if !m.Requirements.SupportsPlatform(device.Platform) {
		return false
	}
	if m.Requirements.MinRAMBytes > 0 && device.RAMBytes > 0 && m.Requirements.MinRAMBytes > device.RAMBytes {
		return false
	}
	if m.Requirements.MinStorageBytes > 0 && device.StorageBytes > 0 && m.Requirements.MinStorageBytes > device.StorageBytes {
		return false
	}
	return true
}
