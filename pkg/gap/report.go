package gap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WriteJSON persists report to path as indented JSON via the same
// write-to-temp-then-rename discipline used by pkg/store, so a crash mid-write
// never leaves a half-written gap report behind.
func WriteJSON(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling gap report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating gap report directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".gap-report-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for gap report: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing gap report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing gap report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing gap report temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming gap report into place: %w", err)
	}
	return nil
}

// WriteMarkdown renders a human-readable, non-canonical summary of report —
// the JSON file is the source of truth; this is a derived convenience view.
func WriteMarkdown(path string, report Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Gap Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Overall completeness: %.1f%%\n\n", report.OverallCompletenessPercent)

	fmt.Fprintf(&b, "## Pillars\n\n")
	fmt.Fprintf(&b, "| Pillar | Avg Completeness | Sub-Requirements |\n|---|---|---|\n")
	pillarIDs := make([]string, 0, len(report.Pillars))
	for id := range report.Pillars {
		pillarIDs = append(pillarIDs, id)
	}
	sort.Strings(pillarIDs)
	for _, id := range pillarIDs {
		p := report.Pillars[id]
		fmt.Fprintf(&b, "| %s | %.1f%% | %d |\n", p.PillarID, p.AvgCompletenessPercent, p.SubRequirementCount)
	}

	fmt.Fprintf(&b, "\n## Sub-Requirements\n\n")
	fmt.Fprintf(&b, "| ID | Completeness | Evidence | Confidence | Trend | Bottleneck |\n|---|---|---|---|---|---|\n")
	subIDs := make([]string, 0, len(report.SubRequirements))
	for id := range report.SubRequirements {
		subIDs = append(subIDs, id)
	}
	sort.Strings(subIDs)
	for _, id := range subIDs {
		g := report.SubRequirements[id]
		fmt.Fprintf(&b, "| %s | %.1f%% | %d | %s | %s | %.1f |\n",
			g.SubRequirementID, g.CompletenessPercent, g.EvidenceCount,
			g.ConfidenceLevel, g.Temporal.Trend, g.BottleneckScore)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating gap summary directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing gap summary: %w", err)
	}
	return nil
}
