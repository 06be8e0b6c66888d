// Package store implements the Version Store (spec.md §4.1): the
// append-only, versioned per-paper review record that is the system's sole
// source of truth. Every mutation appends a new Version; nothing is ever
// rewritten in place.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"pillarlens/pkg/claim"
	"pillarlens/pkg/config"
)

// Version is one immutable snapshot of a paper's review state (spec.md §3
// Paper Record).
type Version struct {
	Version   int          `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	Review    Review       `json:"review"`
	Changes   Changes      `json:"changes"`
}

// Review is the claim set attached to a Version.
type Review struct {
	PaperID string        `json:"paper_id"`
	Claims  []*claim.Claim `json:"claims"`
}

// Changes records what a Version changed relative to its predecessor.
type Changes struct {
	Status   config.ChangeStatus `json:"status"`
	ClaimIDs []string            `json:"claim_ids"`
	Notes    string              `json:"notes,omitempty"`
}

// PaperHistory is the ordered list of Versions for one paper.
type PaperHistory []Version

// History is the whole Version Store: paper filename → its ordered
// versions.
type History map[string]PaperHistory

// Store reads and writes a single Version Store JSON document at path.
// Single-writer discipline (spec.md §5) — callers must not run two Stores
// against the same path concurrently.
type Store struct {
	path string
}

// New returns a Store bound to the version-history JSON file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load loads the Version Store document. A missing or malformed file is not
// an error — it logs a warning and returns an empty History, matching
// spec.md §4.1 ("on malformed or missing file, returns empty; logs warning").
func (s *Store) Load() (History, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		slog.Warn("store: version store file missing, starting empty", "path", s.path)
		return History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		slog.Warn("store: version store file malformed, starting empty", "path", s.path, "error", err)
		return History{}, nil
	}
	if h == nil {
		h = History{}
	}
	return h, nil
}

// Save writes h atomically: encode, write to a temp file in the same
// directory, fsync, then rename over the destination (spec.md invariant 1 —
// "physical write is atomic").
func (s *Store) Save(h History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".version-store-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}

// PendingClaim tags a claim with the paper it belongs to, for
// ExtractPending's callers.
type PendingClaim struct {
	PaperID string
	Claim   *claim.Claim
}

// ExtractPending returns every claim across h whose latest version (by
// claim_id, latest-wins) has status pending_judge_review.
func ExtractPending(h History) []PendingClaim {
	var out []PendingClaim
	for paperID := range h {
		for _, c := range CurrentClaimsFor(h, paperID) {
			if c.Status == config.ClaimStatusPendingJudgeReview {
				out = append(out, PendingClaim{PaperID: paperID, Claim: c})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaperID != out[j].PaperID {
			return out[i].PaperID < out[j].PaperID
		}
		return out[i].Claim.ClaimID < out[j].Claim.ClaimID
	})
	return out
}

// CurrentClaimsFor returns the latest-wins claim set for paperID across all
// its versions (spec.md §4.1 current_claims_for).
func CurrentClaimsFor(h History, paperID string) []*claim.Claim {
	versions := h[paperID]
	latest := make(map[string]*claim.Claim)
	var order []string
	for _, v := range versions {
		for _, c := range v.Review.Claims {
			if _, seen := latest[c.ClaimID]; !seen {
				order = append(order, c.ClaimID)
			}
			latest[c.ClaimID] = c
		}
	}
	out := make([]*claim.Claim, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}

// nextVersion appends a new Version to paperID's history built from
// claims, merging in whatever untouched claims survive from the previous
// latest-wins set (spec.md §4.1: "merged with untouched claims from the
// previous version").
func nextVersion(h History, paperID string, claims []*claim.Claim, status config.ChangeStatus, notes string, at time.Time) Version {
	prior := CurrentClaimsFor(h, paperID)
	merged := make(map[string]*claim.Claim, len(prior)+len(claims))
	var order []string
	for _, c := range prior {
		merged[c.ClaimID] = c
		order = append(order, c.ClaimID)
	}
	ids := make([]string, 0, len(claims))
	for _, c := range claims {
		if _, existed := merged[c.ClaimID]; !existed {
			order = append(order, c.ClaimID)
		}
		merged[c.ClaimID] = c
		ids = append(ids, c.ClaimID)
	}

	claimsOut := make([]*claim.Claim, 0, len(order))
	for _, id := range order {
		claimsOut = append(claimsOut, merged[id])
	}

	nextNum := 1
	if existing := h[paperID]; len(existing) > 0 {
		nextNum = existing[len(existing)-1].Version + 1
	}

	return Version{
		Version:   nextNum,
		Timestamp: at,
		Review:    Review{PaperID: paperID, Claims: claimsOut},
		Changes:   Changes{Status: status, ClaimIDs: ids, Notes: notes},
	}
}

// ApplyNewClaims appends one new version per paper touched by newClaims,
// grouped by PaperID, with the given change status (initial, dra_appeal, or
// deep_review_update).
func ApplyNewClaims(h History, newClaims []*claim.Claim, status config.ChangeStatus, notes string, at time.Time) History {
	byPaper := make(map[string][]*claim.Claim)
	var paperOrder []string
	for _, c := range newClaims {
		if _, seen := byPaper[c.PaperID]; !seen {
			paperOrder = append(paperOrder, c.PaperID)
		}
		byPaper[c.PaperID] = append(byPaper[c.PaperID], c)
	}

	out := cloneHistory(h)
	for _, paperID := range paperOrder {
		v := nextVersion(out, paperID, byPaper[paperID], status, notes, at)
		out[paperID] = append(out[paperID], v)
	}
	return out
}

// ApplyJudgeUpdates appends one judge_update version per paper touched by
// judgedClaims (spec.md §4.1).
func ApplyJudgeUpdates(h History, judgedClaims []*claim.Claim, notes string, at time.Time) History {
	return ApplyNewClaims(h, judgedClaims, config.ChangeStatusJudgeUpdate, notes, at)
}

func cloneHistory(h History) History {
	out := make(History, len(h))
	for k, v := range h {
		versions := make(PaperHistory, len(v))
		copy(versions, v)
		out[k] = versions
	}
	return out
}
