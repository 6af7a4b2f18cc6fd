package migrate

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/mbenali/docmigrate/pkg/progress"
	"github.com/mbenali/docmigrate/pkg/store"
)

// VerifyOptions configures a Verifier.
type VerifyOptions struct {
	// AlwaysReconcile computes the id difference even when the counts
	// match, guarding against same-count-different-identity drift.
	AlwaysReconcile bool
	Reporter        progress.Reporter
	Log             zerolog.Logger
}

// Verifier compares source and destination after a run. It is read-only:
// verification never writes.
type Verifier struct {
	alwaysReconcile bool
	reporter        progress.Reporter
	log             zerolog.Logger
}

func NewVerifier(opts VerifyOptions) *Verifier {
	if opts.Reporter == nil {
		opts.Reporter = progress.Nop{}
	}
	return &Verifier{
		alwaysReconcile: opts.AlwaysReconcile,
		reporter:        opts.Reporter,
		log:             opts.Log,
	}
}

// Verify counts both containers and, when the counts differ (or always,
// with AlwaysReconcile), reconciles which source ids have no destination
// counterpart. It emits one ValidationResult event and, when records are
// missing, one UnmigratedItems event.
func (v *Verifier) Verify(ctx context.Context, source, dest store.Container) (*Validation, error) {
	srcCount, err := source.Count(ctx)
	if err != nil {
		return nil, errors.Errorf("counting source container %s: %w", source.Name(), err)
	}
	dstCount, err := dest.Count(ctx)
	if err != nil {
		return nil, errors.Errorf("counting destination container %s: %w", dest.Name(), err)
	}

	out := &Validation{
		SourceCount:      srcCount,
		DestinationCount: dstCount,
		Matched:          srcCount == dstCount,
	}
	if !out.Matched || v.alwaysReconcile {
		out.Unmigrated, err = v.reconcile(ctx, source, dest)
		if err != nil {
			return nil, err
		}
	}

	v.reporter.Emit(progress.ValidationResult{
		SourceCount:      out.SourceCount,
		DestinationCount: out.DestinationCount,
		Matched:          out.Matched,
	})
	if len(out.Unmigrated) > 0 {
		v.reporter.Emit(progress.UnmigratedItems{IDs: out.Unmigrated})
	}

	if out.Matched {
		v.log.Info().Int64("count", srcCount).Msg("verification matched")
	} else {
		v.log.Warn().
			Int64("source_count", srcCount).
			Int64("destination_count", dstCount).
			Int("unmigrated", len(out.Unmigrated)).
			Msg("verification mismatch")
	}
	return out, nil
}

// reconcile returns the source ids absent from the destination, in source
// scan order. This is an id-level reconciliation; record contents are not
// compared.
func (v *Verifier) reconcile(ctx context.Context, source, dest store.Container) ([]string, error) {
	destIDs := make(map[string]struct{})
	cur, err := dest.Scan(ctx)
	if err != nil {
		return nil, errors.Errorf("scanning destination container %s: %w", dest.Name(), err)
	}
	for cur.Next(ctx) {
		destIDs[cur.Record().ID()] = struct{}{}
	}
	if err := cur.Err(); err != nil {
		_ = cur.Close(ctx)
		return nil, errors.Errorf("reading destination container %s: %w", dest.Name(), err)
	}
	if err := cur.Close(ctx); err != nil {
		return nil, errors.Errorf("closing destination cursor: %w", err)
	}

	var missing []string
	scur, err := source.Scan(ctx)
	if err != nil {
		return nil, errors.Errorf("scanning source container %s: %w", source.Name(), err)
	}
	for scur.Next(ctx) {
		id := scur.Record().ID()
		if _, ok := destIDs[id]; !ok {
			missing = append(missing, id)
		}
	}
	if err := scur.Err(); err != nil {
		_ = scur.Close(ctx)
		return nil, errors.Errorf("reading source container %s: %w", source.Name(), err)
	}
	if err := scur.Close(ctx); err != nil {
		return nil, errors.Errorf("closing source cursor: %w", err)
	}
	return missing, nil
}
