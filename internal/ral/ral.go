// Package ral computes a client's read-at-level: a summary of what reading
// that client's messages has recently paid. Callers use it as a pricing
// hint, so it degrades to a sentinel instead of failing.
package ral

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// Unknown is reported when a client has too little settlement history or the
// lookup fails.
const Unknown = -1

// Defaults for the sample window.
const (
	DefaultWindow     = 100
	DefaultMinSamples = 3
)

// Estimator summarizes recent read credits.
type Estimator struct {
	store      relationaldb.Store
	log        *zap.Logger
	window     int
	minSamples int
}

// NewEstimator creates an estimator over the given sample window. Non-positive
// parameters fall back to the defaults.
func NewEstimator(store relationaldb.Store, log *zap.Logger, window, minSamples int) *Estimator {
	if window <= 0 {
		window = DefaultWindow
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &Estimator{store: store, log: log, window: window, minSamples: minSamples}
}

// Estimate returns the median of the client's most recent read-credit
// amounts, or Unknown when fewer than the minimum samples exist. Storage
// errors are logged and reported as Unknown rather than propagated.
func (e *Estimator) Estimate(ctx context.Context, clientID uuid.UUID) int32 {
	amounts, err := e.store.RecentReadCredits(ctx, clientID, e.window)
	if err != nil {
		e.log.Warn("ral lookup failed",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
		return Unknown
	}
	if len(amounts) < e.minSamples {
		return Unknown
	}
	return median(amounts)
}

// median returns the middle value of the samples, rounding the midpoint of an
// even-sized window to the nearest cent.
func median(amounts []int64) int32 {
	sorted := make([]int64, len(amounts))
	copy(sorted, amounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return int32(sorted[mid])
	}
	return int32(math.Round(float64(sorted[mid-1]+sorted[mid]) / 2))
}
