package job

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrThrottled indicates Drive gave up after too many throttled steps in
// a row. The checkpoint is left in place and the job can be resumed.
var ErrThrottled = errors.New("job: throttled")

// DefaultDrivePause is the wait after a throttled step.
const DefaultDrivePause = time.Second

// DriveOptions tunes Drive.
type DriveOptions struct {
	// Pause is the wait after a throttled step.
	Pause time.Duration

	// MaxThrottled stops the drive after that many consecutive throttled
	// steps. Zero means no limit.
	MaxThrottled int
}

// Drive steps the job bound to token until it finishes, a step fails or
// ctx is done. observe, when set, receives every status including the
// failing one.
func (d *Dispatcher) Drive(ctx context.Context, token string, opts DriveOptions, observe func(Status)) (Status, error) {
	if opts.Pause <= 0 {
		opts.Pause = DefaultDrivePause
	}

	var (
		last      Status
		throttled int
	)
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		st, err := d.Step(ctx, token)
		last = st
		if observe != nil {
			observe(st)
		}
		if err != nil {
			return st, err
		}
		if st.Finished {
			return st, nil
		}
		if !st.Throttled {
			throttled = 0
			continue
		}

		throttled++
		if opts.MaxThrottled > 0 && throttled >= opts.MaxThrottled {
			return st, fmt.Errorf("%w: %d consecutive steps", ErrThrottled, throttled)
		}
		t := time.NewTimer(opts.Pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return st, ctx.Err()
		case <-t.C:
		}
	}
}
