package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/bannerclick/consent/record"
)

// Fanout delivers every result to each of its sinks in order. A failing
// sink is logged and skipped; the joined errors are returned once all
// sinks have been tried.
type Fanout struct {
	sinks []Sink
	log   *slog.Logger
}

// NewFanout returns a Fanout over sinks. A nil logger means slog.Default.
func NewFanout(log *slog.Logger, sinks ...Sink) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{sinks: sinks, log: log}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Send(ctx context.Context, res *record.Result) error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.Send(ctx, res); err != nil {
			f.log.Warn("sink: delivery failed", "sink", i, "visit_id", res.Visit.ID, "domain", res.Visit.Domain, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	errs := make([]error, 0, len(f.sinks))
	for _, s := range f.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
