package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pillarlens/pkg/pipeline"
)

// isPaperFile reports whether name looks like a paper source pkg/chunk
// knows how to extract (spec.md §6 "scan a directory for paper files").
func isPaperFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".pdf" || ext == ".csv"
}

// scanDataDir walks dataDir (non-recursively, matching the flat corpus
// layout spec.md §6 assumes) and returns one PaperInput per paper file,
// ID set to the filename, sorted for deterministic run ordering.
func scanDataDir(dataDir string) ([]pipeline.PaperInput, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}

	var papers []pipeline.PaperInput
	for _, e := range entries {
		if e.IsDir() || !isPaperFile(e.Name()) {
			continue
		}
		papers = append(papers, pipeline.PaperInput{ID: e.Name(), Path: filepath.Join(dataDir, e.Name())})
	}
	sort.Slice(papers, func(i, j int) bool { return papers[i].ID < papers[j].ID })
	return papers, nil
}
