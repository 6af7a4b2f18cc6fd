package migrate

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/mbenali/docmigrate/pkg/config"
	"github.com/mbenali/docmigrate/pkg/progress"
	"github.com/mbenali/docmigrate/pkg/retry"
	"github.com/mbenali/docmigrate/pkg/store"
)

// Execute connects both deployments, runs one full migration pass and
// verifies the outcome. It is the shared entrypoint for the CLI and the
// web front end. Invalid configuration aborts before any connection is
// opened.
func Execute(ctx context.Context, cfg config.Config, reporter progress.Reporter, log zerolog.Logger) (*Result, *Validation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	srcClient, err := store.Connect(ctx, cfg.Source.URI)
	if err != nil {
		return nil, nil, errors.Errorf("connecting to source: %w", err)
	}
	defer func() {
		if err := srcClient.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("closing source client")
		}
	}()

	dstClient, err := store.Connect(ctx, cfg.Destination.URI)
	if err != nil {
		return nil, nil, errors.Errorf("connecting to destination: %w", err)
	}
	defer func() {
		if err := dstClient.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("closing destination client")
		}
	}()

	source := srcClient.Container(cfg.Source.Database, cfg.Source.Container)
	dest := dstClient.Container(cfg.Destination.Database, cfg.Destination.Container)

	m, err := New(Options{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		Policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   time.Duration(cfg.BaseDelay),
		},
		Reporter: reporter,
		Log:      log,
	})
	if err != nil {
		return nil, nil, err
	}

	res, err := m.Run(ctx, source, dest)
	if err != nil {
		return res, nil, err
	}

	verifier := NewVerifier(VerifyOptions{
		AlwaysReconcile: cfg.AlwaysReconcile,
		Reporter:        reporter,
		Log:             log,
	})
	val, err := verifier.Verify(ctx, source, dest)
	if err != nil {
		return res, nil, err
	}
	return res, val, nil
}
