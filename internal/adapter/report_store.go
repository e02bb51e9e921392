package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	m "refract.dev/pkg/refract/internal/model"
)

// ReportStore persists mining reports in the reports directory.
type ReportStore interface {
	Save(dir string, report *m.Report) error
	// LoadLatest returns the most recently saved report.
	LoadLatest(dir string) (*m.Report, error)
	// LoadAll visits every saved report, newest first, one at a time.
	LoadAll(dir string, visit func(*m.Report) error) error
}

// YAMLReportStore stores one YAML file per mining run.
type YAMLReportStore struct{}

// NewReportStore constructs a YAMLReportStore.
func NewReportStore() *YAMLReportStore {
	return &YAMLReportStore{}
}

// Save implements ReportStore.
func (s *YAMLReportStore) Save(dir string, report *m.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create reports dir %s: %w", dir, err)
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("report-%s.yaml", report.RunID))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}

	return nil
}

// LoadLatest implements ReportStore.
func (s *YAMLReportStore) LoadLatest(dir string) (*m.Report, error) {
	paths, err := sortedReportPaths(dir)
	if err != nil {
		return nil, err
	}

	return readReport(paths[0])
}

// LoadAll implements ReportStore.
func (s *YAMLReportStore) LoadAll(dir string, visit func(*m.Report) error) error {
	paths, err := sortedReportPaths(dir)
	if err != nil {
		return err
	}

	for _, path := range paths {
		report, err := readReport(path)
		if err != nil {
			return err
		}

		if err := visit(report); err != nil {
			return err
		}
	}

	return nil
}

// sortedReportPaths lists report files newest first; modification time
// ties break on the file name for determinism.
func sortedReportPaths(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "report-*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list reports in %s: %w", dir, err)
	}

	type entry struct {
		path    string
		modTime int64
	}

	entries := make([]entry, 0, len(matches))

	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		entries = append(entries, entry{path: path, modTime: info.ModTime().UnixNano()})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no reports found in %s", dir)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime != entries[j].modTime {
			return entries[i].modTime > entries[j].modTime
		}

		return entries[i].path > entries[j].path
	})

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.path
	}

	return paths, nil
}

func readReport(path string) (*m.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}

	var report m.Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}

	return &report, nil
}
