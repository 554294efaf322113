package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Drift is one user whose log does not replay to the stored balance.
type Drift struct {
	UserID int64
	Err    error
}

// Report summarizes a reconciliation run.
type Report struct {
	Checked int
	Drifts  []Drift
}

// Reconcile verifies every user in users with at most workers checks in
// flight. Drift is collected; any other error aborts the run.
func Reconcile(ctx context.Context, l Ledger, users []int64, initial decimal.Decimal, workers int) (Report, error) {
	if workers <= 0 {
		workers = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu  sync.Mutex
		rep Report
	)
	for _, id := range users {
		g.Go(func() error {
			err := Verify(gctx, l, id, initial)
			if err != nil && !errors.Is(err, ErrDrift) {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			rep.Checked++
			if err != nil {
				rep.Drifts = append(rep.Drifts, Drift{UserID: id, Err: err})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	sort.Slice(rep.Drifts, func(i, j int) bool { return rep.Drifts[i].UserID < rep.Drifts[j].UserID })
	return rep, nil
}
