package model

import "time"

// ValidationStatus represents the outcome of validating one program.
type ValidationStatus string

const (
	// ValidationPassed indicates identical oracle output pre/post rewrite.
	ValidationPassed ValidationStatus = "passed"
	// ValidationFailed indicates the rewrite changed observable behavior
	// and could not be repaired within the retry budget.
	ValidationFailed ValidationStatus = "failed"
	// ValidationSkipped indicates the program was not rewritten.
	ValidationSkipped ValidationStatus = "skipped"
)

// AbstractionStatus represents the lifecycle outcome of an abstraction.
type AbstractionStatus string

const (
	// AbstractionAccepted indicates the abstraction passed validation.
	AbstractionAccepted AbstractionStatus = "accepted"
	// AbstractionRejected indicates the abstraction was vetoed by the
	// validator and rolled back.
	AbstractionRejected AbstractionStatus = "rejected"
)

// AbstractionReport describes one helper in the output artifact.
type AbstractionReport struct {
	Name        string            `yaml:"name"`
	Params      []string          `yaml:"params"`
	Body        string            `yaml:"body"`
	Occurrences int               `yaml:"occurrences"`
	NetSavings  int               `yaml:"net_savings"`
	Status      AbstractionStatus `yaml:"status"`
	Reason      string            `yaml:"reason,omitempty"`
}

// ProgramReport describes the rewrite outcome for one corpus entry.
type ProgramReport struct {
	ID          string           `yaml:"id"`
	NodesBefore int              `yaml:"nodes_before"`
	NodesAfter  int              `yaml:"nodes_after"`
	Invokes     []string         `yaml:"invokes,omitempty"`
	Rewritten   string           `yaml:"rewritten,omitempty"`
	Validation  ValidationStatus `yaml:"validation"`
	Diff        string           `yaml:"diff,omitempty"`
}

// CorpusStats summarizes ingestion.
type CorpusStats struct {
	Programs       int `yaml:"programs"`
	SkippedRecords int `yaml:"skipped_records"`
	TotalNodes     int `yaml:"total_nodes"`
}

// Report is the final output artifact of one mining run.
type Report struct {
	RunID        string              `yaml:"run_id"`
	CreatedAt    time.Time           `yaml:"created_at"`
	Corpus       CorpusStats         `yaml:"corpus"`
	Abstractions []AbstractionReport `yaml:"abstractions"`
	Programs     []ProgramReport     `yaml:"programs"`
	CloneGroups  [][]string          `yaml:"clone_groups,omitempty"`
	TotalSavings int                 `yaml:"total_savings"`
}
