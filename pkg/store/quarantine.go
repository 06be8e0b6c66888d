package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// QuarantinedClaim is a claim whose sub-requirement resolution confidence
// fell below threshold (spec.md §7 "Unresolved sub-requirement"). It is
// persisted alongside the Version Store rather than discarded, per spec.md
// §4.2, so a human can later resolve it.
type QuarantinedClaim struct {
	PaperID          string    `json:"paper_id"`
	Text             string    `json:"text"`
	AttemptedMatch   string    `json:"attempted_match"`
	Confidence       float64   `json:"confidence"`
	QuarantinedAt    time.Time `json:"quarantined_at"`
}

// QuarantineStore persists the quarantine list (SPEC_FULL.md supplement —
// spec.md §7 names the bucket but not its storage format) as a JSON array
// at path, using the same atomic write-then-rename discipline as the
// Version Store.
type QuarantineStore struct {
	path string
}

func NewQuarantineStore(path string) *QuarantineStore {
	return &QuarantineStore{path: path}
}

func (q *QuarantineStore) Load() ([]QuarantinedClaim, error) {
	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quarantine: read %s: %w", q.path, err)
	}
	var out []QuarantinedClaim
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("quarantine: parse %s: %w", q.path, err)
	}
	return out, nil
}

func (q *QuarantineStore) Save(claims []QuarantinedClaim) error {
	data, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return fmt.Errorf("quarantine: marshal: %w", err)
	}
	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("quarantine: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".quarantine-*.tmp")
	if err != nil {
		return fmt.Errorf("quarantine: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("quarantine: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("quarantine: close temp file: %w", err)
	}
	return os.Rename(tmpName, q.path)
}

// Add appends an entry and persists the updated list.
func (q *QuarantineStore) Add(entry QuarantinedClaim) error {
	existing, err := q.Load()
	if err != nil {
		return err
	}
	existing = append(existing, entry)
	return q.Save(existing)
}
