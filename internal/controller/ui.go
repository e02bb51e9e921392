// Package controller provides output surfaces for mining results.
package controller

import (
	"context"

	"github.com/spf13/cobra"

	m "refract.dev/pkg/refract/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeEstimate StartMode = iota
	ModeMine
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithEstimateMode sets the UI to estimation mode.
func WithEstimateMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeEstimate
	}
}

// WithMineMode sets the UI to full mining mode.
func WithMineMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeMine
	}
}

// NewUI returns the interactive TUI when stdout is a terminal and the
// plain SimpleUI otherwise.
func NewUI(cmd *cobra.Command, interactive bool) UI {
	if interactive {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// UI defines the interface for presenting mining output.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayEstimation(ctx context.Context, candidates []m.Candidate, err error) error
	DisplayConcurrencyInfo(ctx context.Context, threads int, programs int)
	DisplayReport(ctx context.Context, report *m.Report) error
}
