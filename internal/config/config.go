// Package config loads the declarative service table from disk. Per
// spec.md §1 this is an external collaborator of the core — only its
// output (a list of name/command/args triples) is consumed by the
// registry. Grounded on the teacher's main.go Config/ServiceConfig
// shape, re-expressed as YAML (gopkg.in/yaml.v3) per SPEC_FULL.md's
// AMBIENT STACK rather than the teacher's encoding/json.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Service is one declared service entry.
type Service struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// File is the top-level configuration document.
type File struct {
	Services []Service `yaml:"services"`
}

// Load reads and parses the configuration file at path. Deserialisation
// errors are returned verbatim; the caller decides whether they are
// fatal (startup, per spec.md §6) or logged-and-kept (reload, per
// spec.md §4.4 step 1).
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate enforces spec.md §3's record constraints that are checkable
// without the registry: non-empty, NUL-free names/commands/args, and
// uniqueness of names within this load.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Services))
	for _, svc := range f.Services {
		if svc.Name == "" {
			return fmt.Errorf("config: service with empty name")
		}
		if strings.ContainsRune(svc.Name, 0) {
			return fmt.Errorf("config: service %q: name contains NUL", svc.Name)
		}
		if seen[svc.Name] {
			return fmt.Errorf("config: duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = true

		if svc.Command == "" {
			return fmt.Errorf("config: service %q: empty command", svc.Name)
		}
		if strings.ContainsRune(svc.Command, 0) {
			return fmt.Errorf("config: service %q: command contains NUL", svc.Name)
		}
		for _, a := range svc.Args {
			if strings.ContainsRune(a, 0) {
				return fmt.Errorf("config: service %q: argument contains NUL", svc.Name)
			}
		}
	}
	return nil
}
