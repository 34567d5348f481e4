// CLAUDE:SUMMARY In-process callback sink delivering results via a Go function call with zero serialization.
package sink

import (
	"context"

	"github.com/hazyhaar/bannerclick/consent/record"
)

// ResultFunc is called for each finished visit.
type ResultFunc func(ctx context.Context, res *record.Result) error

// Callback delivers results via a Go function call, for embedders that
// consume visits in process.
type Callback struct {
	fn ResultFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn ResultFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, res *record.Result) error {
	if c.fn != nil {
		return c.fn(ctx, res)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
