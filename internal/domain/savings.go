package domain

import (
	m "refract.dev/pkg/refract/internal/model"
	pkg "refract.dev/pkg/refract/pkg"
)

// SavingsSummary aggregates compression results across saved runs.
type SavingsSummary struct {
	Runs         int
	Abstractions int
	NodesSaved   int
}

// SavingsFromReports folds spilled reports into a cross-run summary.
// Only accepted abstractions count toward the totals.
func SavingsFromReports(reports pkg.FileSpill[m.Report]) (SavingsSummary, error) {
	var summary SavingsSummary

	err := reports.Range(func(_ uint64, report m.Report) error {
		summary.Runs++
		summary.NodesSaved += report.TotalSavings

		for _, abstraction := range report.Abstractions {
			if abstraction.Status == m.AbstractionAccepted {
				summary.Abstractions++
			}
		}

		return nil
	})
	if err != nil {
		return SavingsSummary{}, err
	}

	return summary, nil
}
