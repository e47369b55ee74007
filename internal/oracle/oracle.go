// Package oracle observes the real-world metric a prediction is about and
// decides its outcome once the target date has passed.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

var (
	// ErrNoData means the metric could not be read right now. The caller
	// should try again on a later scan.
	ErrNoData = fmt.Errorf("oracle: no data: %w", domain.ErrExternalDependency)
	// ErrUnsupported means no oracle can decide this prediction; it needs
	// an operator.
	ErrUnsupported = errors.New("oracle: unsupported prediction")
)

// Resolution is an oracle's verdict with the value it observed.
type Resolution struct {
	Outcome    domain.Outcome
	Observed   *big.Int
	Source     string
	ObservedAt time.Time
}

// Oracle decides the outcome of one prediction.
type Oracle interface {
	Resolve(ctx context.Context, p domain.Prediction) (Resolution, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, p domain.Prediction) (Resolution, error)

func (f Func) Resolve(ctx context.Context, p domain.Prediction) (Resolution, error) {
	return f(ctx, p)
}

// Router dispatches on prediction category.
type Router struct {
	byCategory map[domain.Category]Oracle
}

// NewRouter returns an empty router. Categories with no oracle report
// ErrUnsupported.
func NewRouter() *Router {
	return &Router{byCategory: make(map[domain.Category]Oracle)}
}

// Handle registers o for category c and returns the router.
func (r *Router) Handle(c domain.Category, o Oracle) *Router {
	r.byCategory[c] = o
	return r
}

func (r *Router) Resolve(ctx context.Context, p domain.Prediction) (Resolution, error) {
	o, ok := r.byCategory[p.Category]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: no oracle for category %s", ErrUnsupported, p.Category)
	}
	return o.Resolve(ctx, p)
}

// threshold returns YES when observed reached the prediction's target value.
func threshold(p domain.Prediction, observed *big.Int) domain.Outcome {
	target := p.TargetValue
	if target == nil {
		target = new(big.Int)
	}
	return domain.OutcomeFor(observed.Cmp(target) >= 0)
}

var _ Oracle = (*Router)(nil)
