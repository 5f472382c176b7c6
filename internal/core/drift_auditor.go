package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DriftMismatch is one summary row whose recorded closing balances differ
// from the values derivable from its recorded deltas. Drift values are
// signed: recorded minus expected.
type DriftMismatch struct {
	Date                   string   `json:"date"`
	CylinderTypeID         int      `json:"cylinder_type_id"`
	DistributorID          int      `json:"distributor_id"`
	ExpectedClosingFulls   int      `json:"expected_closing_fulls"`
	RecordedClosingFulls   int      `json:"recorded_closing_fulls"`
	FullsDrift             int      `json:"fulls_drift"`
	ExpectedClosingEmpties int      `json:"expected_closing_empties"`
	RecordedClosingEmpties int      `json:"recorded_closing_empties"`
	EmptiesDrift           int      `json:"empties_drift"`
	CandidateCauses        []string `json:"candidate_causes,omitempty"`
}

// DriftReport is the output of one read-only audit pass.
type DriftReport struct {
	DistributorID int             `json:"distributor_id"`
	FromDate      string          `json:"from_date"`
	ToDate        string          `json:"to_date"`
	RowsChecked   int             `json:"rows_checked"`
	Mismatches    []DriftMismatch `json:"mismatches,omitempty"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

// DriftAuditor recomputes expected closing balances from recorded deltas and
// flags discrepancies. It never mutates ledger state.
type DriftAuditor struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewDriftAuditor(pool *pgxpool.Pool, logger *logrus.Logger) *DriftAuditor {
	return &DriftAuditor{pool: pool, logger: logger}
}

// Audit checks every summary row for the distributor in [from, to].
// Expected closings use only the customer-movement deltas, so any balance
// edited outside the calculator shows up as drift.
func (a *DriftAuditor) Audit(ctx context.Context, distributorID int, from, to string) (*DriftReport, error) {
	if distributorID <= 0 {
		return nil, errors.New("drift audit must specify a distributor")
	}
	if _, err := time.Parse(dateLayout, from); err != nil {
		return nil, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	if _, err := time.Parse(dateLayout, to); err != nil {
		return nil, fmt.Errorf("invalid to date %q: %w", to, err)
	}

	rows, err := a.pool.Query(ctx, `
		SELECT summary_date::text, cylinder_type_id,
		       opening_fulls, opening_empties,
		       delivered_qty, collected_empties_qty,
		       soft_blocked_qty, customer_unaccounted, inventory_unaccounted,
		       closing_fulls, closing_empties
		FROM daily_summaries
		WHERE distributor_id = $1 AND summary_date BETWEEN $2 AND $3
		ORDER BY summary_date, cylinder_type_id
	`, distributorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries for drift audit: %w", err)
	}
	defer rows.Close()

	report := &DriftReport{
		DistributorID: distributorID,
		FromDate:      from,
		ToDate:        to,
		GeneratedAt:   time.Now(),
	}

	for rows.Next() {
		var date string
		var typeID int
		var openFulls, openEmpties, delivered, collected int
		var softBlocked, customerUnacc, inventoryUnacc int
		var closingFulls, closingEmpties int
		if err := rows.Scan(&date, &typeID,
			&openFulls, &openEmpties, &delivered, &collected,
			&softBlocked, &customerUnacc, &inventoryUnacc,
			&closingFulls, &closingEmpties,
		); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		report.RowsChecked++

		expectedFulls := openFulls + delivered - collected
		expectedEmpties := openEmpties + collected - delivered
		fullsDrift := closingFulls - expectedFulls
		emptiesDrift := closingEmpties - expectedEmpties
		if fullsDrift == 0 && emptiesDrift == 0 {
			continue
		}

		m := DriftMismatch{
			Date:                   date,
			CylinderTypeID:         typeID,
			DistributorID:          distributorID,
			ExpectedClosingFulls:   expectedFulls,
			RecordedClosingFulls:   closingFulls,
			FullsDrift:             fullsDrift,
			ExpectedClosingEmpties: expectedEmpties,
			RecordedClosingEmpties: closingEmpties,
			EmptiesDrift:           emptiesDrift,
		}

		// Attribute likely causes: quantities whose magnitude matches the
		// discrepancy are the usual suspects.
		for _, drift := range []int{fullsDrift, emptiesDrift} {
			if drift == 0 {
				continue
			}
			magnitude := drift
			if magnitude < 0 {
				magnitude = -magnitude
			}
			if softBlocked == magnitude {
				m.CandidateCauses = appendUnique(m.CandidateCauses,
					fmt.Sprintf("soft_blocked_qty (%d) matches discrepancy", softBlocked))
			}
			if customerUnacc == magnitude {
				m.CandidateCauses = appendUnique(m.CandidateCauses,
					fmt.Sprintf("customer_unaccounted (%d) matches discrepancy", customerUnacc))
			}
			if inventoryUnacc == magnitude {
				m.CandidateCauses = appendUnique(m.CandidateCauses,
					fmt.Sprintf("inventory_unaccounted (%d) matches discrepancy", inventoryUnacc))
			}
		}

		report.Mismatches = append(report.Mismatches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"distributor_id": distributorID,
			"rows_checked":   report.RowsChecked,
			"mismatches":     len(report.Mismatches),
		}).Info("drift audit complete")
	}
	return report, nil
}

func appendUnique(causes []string, cause string) []string {
	for _, c := range causes {
		if c == cause {
			return causes
		}
	}
	return append(causes, cause)
}
