package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// GapFailure records one date/cylinder-type pair that could not be backfilled.
type GapFailure struct {
	Date           string `json:"date"`
	CylinderTypeID int    `json:"cylinder_type_id"`
	Error          string `json:"error"`
}

// GapRecoveryResult reports a backfill pass. Partial success is normal:
// failures are listed, not fatal.
type GapRecoveryResult struct {
	DistributorID int          `json:"distributor_id"`
	FromDate      string       `json:"from_date"`
	ToDate        string       `json:"to_date"`
	MissingDates  []string     `json:"missing_dates"`
	Filled        int          `json:"filled"`
	Failures      []GapFailure `json:"failures,omitempty"`
}

// GapRecoveryService finds calendar dates with no daily summary rows and
// backfills them. Dates for one (distributor, cylinder type) key are strictly
// sequential because each day's opening balance is the prior day's closing
// balance; distinct cylinder types recover concurrently under a worker limit.
type GapRecoveryService struct {
	pool      *pgxpool.Pool
	summaries SummaryService
	logger    *logrus.Logger
	workers   int
}

func NewGapRecoveryService(pool *pgxpool.Pool, summaries SummaryService, logger *logrus.Logger, workers int) *GapRecoveryService {
	if workers <= 0 {
		workers = 4
	}
	return &GapRecoveryService{pool: pool, summaries: summaries, logger: logger, workers: workers}
}

// RecoverRange backfills every date in [from, to] that has no summary rows
// for the distributor. Re-running over a filled range is a no-op.
func (s *GapRecoveryService) RecoverRange(ctx context.Context, distributorID int, from, to string) (*GapRecoveryResult, error) {
	if distributorID <= 0 {
		return nil, errors.New("gap recovery must specify a distributor")
	}
	fromDate, err := time.Parse(dateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	toDate, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	if toDate.Before(fromDate) {
		return nil, fmt.Errorf("to date %s is before from date %s", to, from)
	}

	existing, err := s.datesWithRows(ctx, distributorID, from, to)
	if err != nil {
		return nil, err
	}

	var missing []string
	for d := fromDate; !d.After(toDate); d = d.AddDate(0, 0, 1) {
		if ds := d.Format(dateLayout); !existing[ds] {
			missing = append(missing, ds)
		}
	}
	sort.Strings(missing)

	result := &GapRecoveryResult{
		DistributorID: distributorID,
		FromDate:      from,
		ToDate:        to,
		MissingDates:  missing,
	}
	if len(missing) == 0 {
		return result, nil
	}

	typeIDs, err := s.activeCylinderTypes(ctx)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"distributor_id": distributorID,
			"missing_dates":  len(missing),
			"cylinder_types": len(typeIDs),
		}).Info("starting gap recovery")
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	// One goroutine per cylinder type; each walks the missing dates in
	// ascending order so carry-forward is correct, and records failures
	// without aborting the rest of the pass.
	for _, typeID := range typeIDs {
		typeID := typeID
		g.Go(func() error {
			for _, date := range missing {
				key := SummaryKey{Date: date, CylinderTypeID: typeID, DistributorID: distributorID}
				if _, err := s.summaries.Calculate(gctx, key, "system"); err != nil {
					if errors.Is(err, ErrSummaryLocked) {
						continue
					}
					mu.Lock()
					result.Failures = append(result.Failures, GapFailure{
						Date:           date,
						CylinderTypeID: typeID,
						Error:          err.Error(),
					})
					mu.Unlock()
					if s.logger != nil {
						s.logger.WithFields(logrus.Fields{
							"date":             date,
							"cylinder_type_id": typeID,
						}).WithError(err).Warn("gap recovery failed for date, continuing")
					}
					continue
				}
				mu.Lock()
				result.Filled++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"distributor_id": distributorID,
			"missing_dates":  len(missing),
			"filled":         result.Filled,
			"failures":       len(result.Failures),
		}).Info("gap recovery complete")
	}
	return result, nil
}

// datesWithRows returns the set of dates in [from, to] that already have at
// least one summary row for the distributor.
func (s *GapRecoveryService) datesWithRows(ctx context.Context, distributorID int, from, to string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT summary_date::text
		FROM daily_summaries
		WHERE distributor_id = $1 AND summary_date BETWEEN $2 AND $3
	`, distributorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing summary dates: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan summary date: %w", err)
		}
		existing[d] = true
	}
	return existing, rows.Err()
}

func (s *GapRecoveryService) activeCylinderTypes(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, "SELECT id FROM cylinder_types WHERE is_active = true ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query active cylinder types: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cylinder type id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
