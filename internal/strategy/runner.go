package strategy

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// Result is the outcome of evaluating one instance.
type Result struct {
	Strategy string
	Order    *models.OrderSpec
	Err      error
}

// Runner evaluates strategy instances concurrently. Each instance gets its
// own copy of the chain so Greeks can be filled without sharing snapshots.
type Runner struct {
	instances []*Instance
	limit     int
	logger    logrus.FieldLogger
}

// NewRunner creates a Runner. limit bounds concurrent evaluations; zero or
// less means one goroutine per instance.
func NewRunner(instances []*Instance, limit int, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{instances: instances, limit: limit, logger: logger.WithField("component", "runner")}
}

// Instances returns the managed instances.
func (r *Runner) Instances() []*Instance {
	return r.instances
}

// Evaluate runs every instance against chain. Construction errors are
// reported per instance in the results; only context cancellation fails
// the whole pass.
func (r *Runner) Evaluate(ctx context.Context, chain []*models.Contract) ([]Result, error) {
	results := make([]Result, len(r.instances))
	g, gctx := errgroup.WithContext(ctx)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}

	for i, inst := range r.instances {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			order, err := inst.Evaluate(gctx, CloneChain(chain))
			results[i] = Result{Strategy: inst.Name(), Order: order, Err: err}
			if err != nil {
				r.logger.WithError(err).WithField("strategy", inst.Name()).Warn("Strategy evaluation failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// CloneChain deep-copies contract snapshots.
func CloneChain(chain []*models.Contract) []*models.Contract {
	out := make([]*models.Contract, len(chain))
	for i, c := range chain {
		if c == nil {
			continue
		}
		cp := *c
		if c.Greeks != nil {
			g := *c.Greeks
			cp.Greeks = &g
		}
		out[i] = &cp
	}
	return out
}
