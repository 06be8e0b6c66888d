// Package catalog loads and validates the pillar/requirement/sub-requirement
// taxonomy (spec.md §3 Pillar Catalog, §4.2) and resolves fuzzy
// sub-requirement references produced by the reviewers against it.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Sentinel errors for catalog loading and resolution.
var (
	ErrEmptyCatalog           = errors.New("pillar catalog is empty")
	ErrDuplicateIdentifier    = errors.New("duplicate sub-requirement identifier")
	ErrMalformedIdentifier    = errors.New("malformed identifier")
	ErrUnresolvedSubRequirement = errors.New("unresolved sub-requirement")
)

// SubRequirement is the leaf node of the pillar tree.
type SubRequirement struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Keywords     []string `json:"keywords,omitempty"`
	Thresholds   map[string]float64 `json:"thresholds,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"`

	requirementID string
	pillarID      string
}

// Requirement groups sub-requirements under a pillar.
type Requirement struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	SubRequirements  []SubRequirement  `json:"sub_requirements"`
}

// Pillar is the top-level grouping of the taxonomy.
type Pillar struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Requirements []Requirement `json:"requirements"`
}

// document is the on-disk shape: a top-level map of pillar identifiers to
// their tree, per spec.md §6.
type document struct {
	Pillars map[string]Pillar `json:"pillars"`
}

// Catalog is the read-only, in-memory taxonomy plus derived lookup indexes.
// It is safe for concurrent reads; Load replaces the whole index, which
// invalidates any coverage computation built against the previous state
// (spec.md §3: "reloading it must invalidate any cached coverage
// computation" — callers achieve this simply by holding a *Catalog value and
// replacing it wholesale on reload rather than mutating in place).
type Catalog struct {
	pillars map[string]Pillar
	byID    map[string]*SubRequirement
	order   []string // stable iteration order for list_sub_requirements
}

// Load reads and validates the pillar catalog JSON at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pillar catalog %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing pillar catalog %s: %w", path, err)
	}

	return build(doc)
}

func build(doc document) (*Catalog, error) {
	if len(doc.Pillars) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		pillars: make(map[string]Pillar, len(doc.Pillars)),
		byID:    make(map[string]*SubRequirement),
	}

	for pillarID, pillar := range doc.Pillars {
		if pillarID == "" {
			return nil, fmt.Errorf("%w: empty pillar identifier", ErrMalformedIdentifier)
		}
		pillar.ID = pillarID
		for ri, req := range pillar.Requirements {
			if req.ID == "" {
				return nil, fmt.Errorf("%w: empty requirement identifier in pillar %s", ErrMalformedIdentifier, pillarID)
			}
			for si := range req.SubRequirements {
				sr := &pillar.Requirements[ri].SubRequirements[si]
				if sr.ID == "" {
					return nil, fmt.Errorf("%w: empty sub-requirement identifier in %s/%s", ErrMalformedIdentifier, pillarID, req.ID)
				}
				if _, exists := c.byID[sr.ID]; exists {
					return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, sr.ID)
				}
				sr.pillarID = pillarID
				sr.requirementID = req.ID
				c.byID[sr.ID] = sr
				c.order = append(c.order, sr.ID)
			}
		}
		c.pillars[pillarID] = pillar
	}

	sort.Strings(c.order)
	return c, nil
}

// ListSubRequirements returns every sub-requirement in stable (identifier)
// order.
func (c *Catalog) ListSubRequirements() []SubRequirement {
	out := make([]SubRequirement, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.byID[id])
	}
	return out
}

// Pillars returns the full pillar tree, keyed by pillar identifier.
func (c *Catalog) Pillars() map[string]Pillar {
	return c.pillars
}

// SubRequirementByID returns the sub-requirement with the given identifier,
// or false if none exists.
func (c *Catalog) SubRequirementByID(id string) (SubRequirement, bool) {
	sr, ok := c.byID[id]
	if !ok {
		return SubRequirement{}, false
	}
	return *sr, true
}

// PillarOf returns the pillar identifier a sub-requirement belongs to.
func (sr SubRequirement) PillarOf() string { return sr.pillarID }

// RequirementOf returns the requirement identifier a sub-requirement belongs to.
func (sr SubRequirement) RequirementOf() string { return sr.requirementID }

// DependenciesOf returns the sub-requirement identifiers that subReqID
// declares a dependency on, for bottleneck computation (spec.md §4.2).
func (c *Catalog) DependenciesOf(subReqID string) []string {
	sr, ok := c.byID[subReqID]
	if !ok {
		return nil
	}
	return sr.DependsOn
}
