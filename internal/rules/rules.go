// Package rules holds the domain rule set consulted by agents and review
// checkers: per-domain directory boundaries, file extensions and naming
// conventions.
//
// A rule set is built once at startup from configuration and is read-only
// afterwards, so it is safe to share by reference across concurrent runs.
package rules

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/conductor/internal/config"
)

// Domain describes the structural rules of one named codebase area.
type Domain struct {
	Name              string
	Directories       []string
	Extensions        []string
	NamingConventions map[string]string
	RequireTests      bool
	MaxFileSize       int64
	MaxFunctionLength int
}

// ReviewRules carries review gate thresholds.
type ReviewRules struct {
	CoverageThreshold float64
	BlockingSeverity  string
}

// RuleSet is the full set of domain rules plus review thresholds.
type RuleSet struct {
	domains map[string]*Domain
	Review  ReviewRules
}

// FromConfig builds a rule set from configuration.
func FromConfig(domains map[string]config.DomainConfig, review config.ReviewConfig) *RuleSet {
	rs := &RuleSet{
		domains: make(map[string]*Domain, len(domains)),
		Review: ReviewRules{
			CoverageThreshold: review.CoverageThreshold,
			BlockingSeverity:  review.BlockingSeverity,
		},
	}
	for name, d := range domains {
		rs.domains[name] = &Domain{
			Name:              name,
			Directories:       d.Directories,
			Extensions:        d.Extensions,
			NamingConventions: d.NamingConventions,
			RequireTests:      d.RequireTests,
			MaxFileSize:       d.MaxFileSize,
			MaxFunctionLength: d.MaxFunctionLength,
		}
	}
	return rs
}

// Domain returns the named domain.
func (rs *RuleSet) Domain(name string) (*Domain, bool) {
	d, ok := rs.domains[name]
	return d, ok
}

// Names returns all domain names, sorted for deterministic iteration.
func (rs *RuleSet) Names() []string {
	names := make([]string, 0, len(rs.domains))
	for name := range rs.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatchDomain routes a file path to a domain by directory prefix, falling
// back to extension. Returns false if no domain claims the path.
func (rs *RuleSet) MatchDomain(path string) (*Domain, bool) {
	for _, name := range rs.Names() {
		d := rs.domains[name]
		for _, dir := range d.Directories {
			if strings.HasPrefix(path, dir) {
				return d, true
			}
		}
	}
	ext := filepath.Ext(path)
	if ext == "" {
		return nil, false
	}
	for _, name := range rs.Names() {
		d := rs.domains[name]
		for _, e := range d.Extensions {
			if e == ext {
				return d, true
			}
		}
	}
	return nil, false
}

// AllowsPath reports whether the path lies inside one of the domain's
// directories.
func (d *Domain) AllowsPath(path string) bool {
	for _, dir := range d.Directories {
		if strings.HasPrefix(path, dir) {
			return true
		}
	}
	return false
}

// AllowsExtension reports whether the path's extension is permitted in the
// domain. Domains with no declared extensions accept anything.
func (d *Domain) AllowsExtension(path string) bool {
	if len(d.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range d.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Convention returns the naming convention configured for a kind of artifact
// ("components", "files", "modules", ...). Empty if not configured.
func (d *Domain) Convention(kind string) string {
	return d.NamingConventions[kind]
}

// Naming convention patterns.
var namingPatterns = map[string]*regexp.Regexp{
	"PascalCase": regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`),
	"camelCase":  regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`),
	"snake_case": regexp.MustCompile(`^[a-z][a-z0-9_]*$`),
	"kebab-case": regexp.MustCompile(`^[a-z][a-z0-9-]*$`),
}

// CheckNaming reports whether name satisfies the convention. Unknown
// conventions accept any name so a misconfigured rule never hard-blocks.
func CheckNaming(name, convention string) bool {
	pattern, ok := namingPatterns[convention]
	if !ok {
		return true
	}
	return pattern.MatchString(name)
}

// BaseName strips directory and extension from a path, for naming checks
// against file names.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
