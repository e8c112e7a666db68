package watcher

import (
	"context"
	"time"

	"github.com/shahcompbio/montage-sub000/pkg/logging"
)

// Debouncer folds bursts of change events into one. An editor save often
// produces several writes in a row.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer emits once input has been quiet for quietPeriod, or maxWait
// after the first event of a burst, whichever comes first.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 1),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		pending  *ChangeEvent
		quiet    <-chan time.Time
		deadline <-chan time.Time
	)
	flush := func() {
		if pending == nil {
			return
		}
		logging.Debug("flushing catalog changes", "count", pending.Count)
		select {
		case d.output <- *pending:
		case <-ctx.Done():
		}
		pending, quiet, deadline = nil, nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			if pending == nil {
				pending = &ev
				deadline = time.After(d.maxWait)
			} else {
				pending.Count += ev.Count
				pending.Timestamp = ev.Timestamp
			}
			quiet = time.After(d.quietPeriod)

		case <-quiet:
			flush()

		case <-deadline:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
