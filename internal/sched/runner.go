package sched

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fleetcron/internal/ledger"
	"fleetcron/pkg/logx"
)

// runOccurrence is the per-occurrence coordinator: normalize the intended
// time, claim it, run the job, record the outcome. All failures are
// contained here; nothing propagates back into the timer chain.
func (s *Scheduler) runOccurrence(def JobDefinition, intended time.Time) {
	ctx := context.Background()

	// Sub-second jitter must not mint spurious occurrence identities.
	intended = intended.Truncate(time.Second)

	if def.Transient || s.ledger == nil {
		s.invoke(ctx, def, intended, 0)
		return
	}

	id, err := s.ledger.Claim(ctx, def.Name, intended)
	if errors.Is(err, ledger.ErrDuplicateOccurrence) {
		s.log.Info("occurrence claimed elsewhere, skipping",
			logx.String("job", def.Name), logx.Time("intended", intended),
			logx.Int64("record", id))
		return
	}
	if err != nil {
		// A failed claim is ambiguous: another process may hold the
		// occurrence. Not running is the safe side of the race.
		s.log.Error("ledger claim failed, not running",
			logx.String("job", def.Name), logx.Time("intended", intended),
			logx.Err(err))
		return
	}

	s.invoke(ctx, def, intended, id)
}

// invoke runs the job and, when id is non-zero, records the outcome.
func (s *Scheduler) invoke(ctx context.Context, def JobDefinition, intended time.Time, id int64) {
	start := time.Now()
	result, err := def.Run(ctx, intended, def.Name)
	took := time.Since(start)

	if err != nil {
		s.log.Error("job failed",
			logx.String("job", def.Name), logx.Time("intended", intended),
			logx.Duration("took", took), logx.Err(err))
		if id != 0 {
			if ferr := s.ledger.Fail(ctx, id, err.Error()); ferr != nil {
				s.log.Error("recording job failure failed",
					logx.String("job", def.Name), logx.Int64("record", id),
					logx.Err(ferr))
			}
		}
		return
	}

	s.log.Info("job ok",
		logx.String("job", def.Name), logx.Time("intended", intended),
		logx.Duration("took", took))
	if id != 0 {
		if cerr := s.ledger.Complete(ctx, id, encodeResult(result)); cerr != nil {
			// The job already ran; a failed write can't retract that.
			s.log.Error("recording job result failed",
				logx.String("job", def.Name), logx.Int64("record", id),
				logx.Err(cerr))
		}
	}
}

func encodeResult(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
