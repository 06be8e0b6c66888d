// Package csvexport renders the Version Store's current claim set as the
// derived CSV view spec.md §6 describes. The Version Store remains the
// source of truth; any discrepancy between the two is resolved in its favor
// (spec.md §3 invariant 4).
package csvexport

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"pillarlens/pkg/claim"
	"pillarlens/pkg/store"
)

var header = []string{
	"FILENAME", "CLAIM_ID", "SUB_REQUIREMENT_ID", "STATUS",
	"EVIDENCE_COMPOSITE_SCORE", "EVIDENCE_STRENGTH_SCORE",
	"PROVENANCE_PAGE_NUMBERS", "PROVENANCE_SECTION",
	"EVIDENCE_RIGOR_SCORE", "EVIDENCE_RELEVANCE_SCORE", "EVIDENCE_DIRECTNESS_SCORE",
	"EVIDENCE_IS_RECENT", "EVIDENCE_REPRODUCIBILITY_SCORE",
}

// Export writes every paper's current (latest-wins) claim set to path as CSV,
// one row per claim, in a stable (paper_id, claim_id) order so repeated runs
// on unchanged input produce byte-identical output.
func Export(h store.History, path string) error {
	var rows []*claim.Claim
	paperIDs := make([]string, 0, len(h))
	for paperID := range h {
		paperIDs = append(paperIDs, paperID)
	}
	sort.Strings(paperIDs)

	for _, paperID := range paperIDs {
		claims := store.CurrentClaimsFor(h, paperID)
		rows = append(rows, claims...)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PaperID != rows[j].PaperID {
			return rows[i].PaperID < rows[j].PaperID
		}
		return rows[i].ClaimID < rows[j].ClaimID
	})

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating csv export directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating csv export %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, c := range rows {
		record, err := row(c)
		if err != nil {
			return fmt.Errorf("encoding claim %s: %w", c.ClaimID, err)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing csv row for claim %s: %w", c.ClaimID, err)
		}
	}
	w.Flush()
	return w.Error()
}

// row renders one claim as a CSV record. Legacy claims with no
// evidence_quality (not yet judged) write empty strings for every quality
// column rather than "0" or "null" (spec.md §6 backward compatibility).
func row(c *claim.Claim) ([]string, error) {
	pages, err := json.Marshal(c.Provenance.PageNumbers)
	if err != nil {
		return nil, err
	}

	record := []string{
		c.PaperID,
		c.ClaimID,
		c.SubRequirementID,
		string(c.Status),
		"", "", // composite, strength
		string(pages),
		c.Provenance.Section,
		"", "", "", "", "", // rigor, relevance, directness, is_recent, reproducibility
	}

	if q := c.EvidenceQuality; q != nil {
		record[4] = strconv.FormatFloat(q.Composite, 'f', 3, 64)
		record[5] = strconv.Itoa(q.Strength)
		record[8] = strconv.Itoa(q.Rigor)
		record[9] = strconv.Itoa(q.Relevance)
		record[10] = strconv.Itoa(q.Directness)
		record[11] = strconv.FormatBool(q.IsRecent)
		record[12] = strconv.Itoa(q.Reproducibility)
	}

	return record, nil
}
