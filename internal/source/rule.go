// Package source drives listing-page pagination for each publishing site.
// One generic adapter is parameterized by a Rule value; the per-site
// differences (base URL, pagination scheme, selectors, extraction strategy
// order) live in the rule table, not in per-site code.
package source

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/mergerwatch/casecrawl/internal/pagetype"
	"github.com/mergerwatch/casecrawl/internal/parse"
)

// PaginationKind selects how a source exposes "next page".
type PaginationKind int

const (
	// StaticIndex maps page N to a deterministic path: page 1 is the base
	// listing, page N≥2 is index_{N-2+FirstIndex}.html in the same
	// directory.
	StaticIndex PaginationKind = iota + 1

	// Pager uses a server-side "next" control that must be invoked and
	// whose effect is verified by comparing a content fingerprint.
	Pager

	// Flat is a single listing page with no pagination.
	Flat
)

// String returns the kind name.
func (k PaginationKind) String() string {
	switch k {
	case StaticIndex:
		return "static_index"
	case Pager:
		return "pager"
	case Flat:
		return "flat"
	default:
		return "unknown"
	}
}

// Pagination describes one source's paging scheme.
type Pagination struct {
	Kind PaginationKind

	// FirstIndex is the numeric suffix of page 2 for StaticIndex sources
	// (beijing uses index_1.html, shanghai index_2.html).
	FirstIndex int

	// PagerURL is the endpoint behind the "next" control for Pager sources.
	PagerURL string
}

// ListRule describes how to read case links off a listing page.
type ListRule struct {
	// ItemSelector matches one entry per case. When LinkSelector is empty
	// the matched element is the link itself.
	ItemSelector string
	LinkSelector string
	DateSelector string

	// StripDateSuffix removes a trailing list-date from the link text
	// (shaanxi renders the date inside the anchor).
	StripDateSuffix bool
}

// Rule is the full configuration for one source.
type Rule struct {
	Source     pagetype.Source
	Region     string
	BaseURL    string
	Pagination Pagination
	List       ListRule
	Parser     *parse.Parser
}

// Override is a per-source settings patch loaded from a YAML file, for
// pointing a rule at a mirror or archived copy of a listing.
type Override struct {
	BaseURL  string `yaml:"base_url"`
	PagerURL string `yaml:"pager_url"`
}

// LoadOverrides reads a YAML map of source name to override.
func LoadOverrides(path string) (map[string]Override, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read overrides %s", path)
	}
	var out map[string]Override
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrapf(err, "source: parse overrides %s", path)
	}
	return out, nil
}

// Apply patches the rule with any non-empty override fields.
func (r Rule) Apply(o Override) Rule {
	if o.BaseURL != "" {
		r.BaseURL = o.BaseURL
	}
	if o.PagerURL != "" {
		r.Pagination.PagerURL = o.PagerURL
	}
	return r
}
