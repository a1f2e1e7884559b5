// Package driver implements the reference evaluation driver described
// only abstractly by spec.md: it pulls records from a RecordSource,
// dispatches each to every evaluator, and at end-of-stream finalizes
// the stateful evaluators in dependency order.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/archivequal/dwcacore/evaluator"
	"github.com/archivequal/dwcacore/record"
	"github.com/ledgerwatch/log/v3"
)

// RecordSource yields every record in a stream exactly once, in
// whatever order the underlying archive presents them. Next returns
// io.EOF once the stream is exhausted; it must not be called again
// afterward.
type RecordSource interface {
	Next(ctx context.Context) (record.Record, record.EvalContext, error)
}

// Run drives evals against every record src yields, then finalizes the
// stateful ones in dependency order, per spec.md §4.5. It always calls
// Close on every evaluator that implements evaluator.Finalizer exactly
// once, regardless of finalize errors, and joins every error it
// encounters (intake, finalize, or close) rather than aborting on the
// first one.
func Run(ctx context.Context, src RecordSource, acc record.Accumulator, evals []evaluator.Evaluator) error {
	order, orderErr := topologicalOrder(evals)

	var errs []error
	if orderErr != nil {
		errs = append(errs, orderErr)
	} else {
		if err := intake(ctx, src, acc, evals); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, finalize(order, acc)...)
	}
	errs = append(errs, closeAll(evals)...)

	return errors.Join(errs...)
}

// intake pulls every record from src and dispatches it to each
// evaluator's HandleEval, accumulating any non-nil finding immediately.
// A per-record dispatch error is logged and the record is skipped
// rather than aborting the whole stream, matching spec.md §7's
// "validation continues past a single record's error" requirement.
func intake(ctx context.Context, src RecordSource, acc record.Accumulator, evals []evaluator.Evaluator) error {
	for {
		rec, evalCtx, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("driver: read record: %w", err)
		}
		for _, e := range evals {
			finding, err := e.HandleEval(rec, evalCtx)
			if err != nil {
				log.Warn("driver: evaluator intake error", "err", err)
				continue
			}
			if finding != nil {
				if err := acc.Accept(*finding); err != nil {
					return fmt.Errorf("driver: accept finding: %w", err)
				}
			}
		}
	}
}

// finalize calls HandlePostIterate, in order, on every evaluator that
// implements evaluator.Finalizer. A single evaluator's finalize error
// does not prevent the others in order from finalizing; every error
// encountered is returned together.
func finalize(order []evaluator.Evaluator, acc record.Accumulator) []error {
	var errs []error
	for _, e := range order {
		f, ok := e.(evaluator.Finalizer)
		if !ok {
			continue
		}
		if err := f.HandlePostIterate(acc); err != nil {
			errs = append(errs, fmt.Errorf("driver: finalize %s: %w", keyOf(e), err))
		}
	}
	return errs
}

// closeAll closes every evaluator implementing evaluator.Finalizer,
// regardless of order, and regardless of whether finalize already
// failed for it.
func closeAll(evals []evaluator.Evaluator) []error {
	var errs []error
	for _, e := range evals {
		f, ok := e.(evaluator.Finalizer)
		if !ok {
			continue
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("driver: close %s: %w", keyOf(e), err))
		}
	}
	return errs
}

func keyOf(e evaluator.Evaluator) string {
	if k, ok := e.(evaluator.Keyed); ok {
		return k.Key()
	}
	return "<unkeyed>"
}

// topologicalOrder returns the stateful (evaluator.Keyed) subset of
// evals ordered so that every evaluator.DependsOn dependency finalizes
// before its dependent, using Kahn's algorithm. Evaluators with no Key
// (stateless ones) are dropped from the result since they have nothing
// to finalize.
func topologicalOrder(evals []evaluator.Evaluator) ([]evaluator.Evaluator, error) {
	keyed := make(map[string]evaluator.Evaluator)
	var keys []string
	for _, e := range evals {
		k, ok := e.(evaluator.Keyed)
		if !ok {
			continue
		}
		if _, dup := keyed[k.Key()]; dup {
			return nil, fmt.Errorf("driver: duplicate evaluator key %q", k.Key())
		}
		keyed[k.Key()] = e
		keys = append(keys, k.Key())
	}

	deps := make(map[string][]string, len(keys))
	indegree := make(map[string]int, len(keys))
	for _, k := range keys {
		indegree[k] = 0
	}
	for _, k := range keys {
		d, ok := keyed[k].(evaluator.DependsOn)
		if !ok {
			continue
		}
		for _, dep := range d.DependsOn() {
			if _, exists := keyed[dep]; !exists {
				return nil, fmt.Errorf("driver: evaluator %q depends on unknown key %q", k, dep)
			}
			deps[dep] = append(deps[dep], k)
			indegree[k]++
		}
	}

	var queue []string
	for _, k := range keys {
		if indegree[k] == 0 {
			queue = append(queue, k)
		}
	}

	var order []evaluator.Evaluator
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		order = append(order, keyed[k])
		for _, dependent := range deps[k] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(keys) {
		return nil, fmt.Errorf("driver: dependency cycle detected among evaluators")
	}
	return order, nil
}
