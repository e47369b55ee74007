// Package pipeline moves ledger data out to the off-ledger sinks: the event
// relay and the scheduled audit archive.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the relay and, when configured, the audit archiver.
type Orchestrator struct {
	relay       *Relay
	archiver    *AuditArchiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil.
func NewOrchestrator(relay *Relay, archiver *AuditArchiver, archiveCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		relay:       relay,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// Run blocks until ctx is done or a sub-pipeline fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.relay.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("relay: %w", err)
	})

	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("audit archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped")
	return nil
}
