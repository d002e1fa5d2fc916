package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pact-verifier/internal/types"
)

// Checker verifies a single interaction
type Checker interface {
	Check(interaction *types.Interaction) ([]types.Violation, error)
}

// Config holds configuration for a verification run
type Config struct {
	Concurrent bool
	MaxWorkers int
}

// Runner checks interactions, optionally in parallel
type Runner struct {
	config  Config
	checker Checker
	log     logrus.FieldLogger
}

// NewRunner creates a new runner
func NewRunner(config Config, checker Checker, log logrus.FieldLogger) *Runner {
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	return &Runner{config: config, checker: checker, log: log}
}

// Run checks every interaction. Results are returned in input order no
// matter in which order workers finish. Cancelling ctx stops scheduling new
// interactions and Run returns ctx.Err().
func (r *Runner) Run(ctx context.Context, interactions []types.Interaction) ([]types.InteractionResult, error) {
	results := make([]types.InteractionResult, len(interactions))

	limit := 1
	if r.config.Concurrent {
		limit = r.config.MaxWorkers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range interactions {
		if gctx.Err() != nil {
			break
		}
		i := i
		interaction := &interactions[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			violations, err := r.checker.Check(interaction)
			if err != nil {
				return fmt.Errorf("failed to check %s: %w", interaction.Location(), err)
			}
			r.log.WithFields(logrus.Fields{
				"interaction": interaction.Index,
				"description": interaction.Description,
				"violations":  len(violations),
			}).Debug("interaction checked")

			results[i] = types.InteractionResult{
				Index:       interaction.Index,
				Description: interaction.Description,
				Violations:  violations,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
