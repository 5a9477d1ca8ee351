// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Profile selects and tunes parser variants for a scan without
// recompiling. Profiles are authored as JSONC files (JSON extended
// with // comments and trailing commas):
//
//	{
//	  // firmware triage: containers only, no payload formats
//	  "enable": ["androidsparse", "androidboothuawei", "tar"],
//	  "poison_threshold": 1,
//	}
//
// Enable and Disable are mutually exclusive. An empty profile changes
// nothing.
type Profile struct {
	// Enable, when non-empty, restricts the scan to exactly these
	// variants. Every name must be registered.
	Enable []string `json:"enable,omitempty"`

	// Disable removes the named variants from an otherwise full
	// registry. Every name must be registered.
	Disable []string `json:"disable,omitempty"`

	// PoisonThreshold, when positive, overrides the session's fault
	// tolerance before a variant is skipped.
	PoisonThreshold int `json:"poison_threshold,omitempty"`
}

// ParseProfile strips JSONC comments and trailing commas from data,
// then unmarshals the result.
func ParseProfile(data []byte) (*Profile, error) {
	stripped := jsonc.ToJSON(data)

	var profile Profile
	if err := json.Unmarshal(stripped, &profile); err != nil {
		return nil, fmt.Errorf("parsing scan profile: %w", err)
	}
	if len(profile.Enable) > 0 && len(profile.Disable) > 0 {
		return nil, fmt.Errorf("scan profile: enable and disable are mutually exclusive")
	}
	return &profile, nil
}

// ReadProfile reads a JSONC profile file from disk and parses it.
func ReadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	profile, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return profile, nil
}

// Apply builds a new unfrozen registry holding the variants the
// profile selects from source, preserving registration (priority)
// order. Unknown names are errors: a typo in a profile should fail
// loudly, not silently scan with the wrong formats.
func (p *Profile) Apply(source *Registry) (*Registry, error) {
	parsers := source.Parsers()
	known := make(map[string]bool, len(parsers))
	for _, parser := range parsers {
		known[parser.Name()] = true
	}
	for _, name := range append(append([]string(nil), p.Enable...), p.Disable...) {
		if !known[name] {
			return nil, fmt.Errorf("scan profile: unknown parser %q", name)
		}
	}

	keep := func(name string) bool {
		if len(p.Enable) > 0 {
			for _, enabled := range p.Enable {
				if name == enabled {
					return true
				}
			}
			return false
		}
		for _, disabled := range p.Disable {
			if name == disabled {
				return false
			}
		}
		return true
	}

	filtered := NewRegistry()
	for _, parser := range parsers {
		if !keep(parser.Name()) {
			continue
		}
		if err := filtered.Register(parser); err != nil {
			return nil, err
		}
	}
	return filtered, nil
}
