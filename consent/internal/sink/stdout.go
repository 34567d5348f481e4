// CLAUDE:SUMMARY JSON-lines sink: one table-tagged line per visit, banner and interaction row.
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/bannerclick/consent/record"
)

// Lines writes each Row of a result as one JSON line. A result's lines are
// written together, never interleaved with another visit's.
type Lines struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdout returns a Lines sink on w, or on os.Stdout when w is nil.
func NewStdout(w io.Writer) *Lines {
	if w == nil {
		w = os.Stdout
	}
	return &Lines{w: w}
}

func (l *Lines) Send(_ context.Context, res *record.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bw := bufio.NewWriter(l.w)
	enc := json.NewEncoder(bw)
	for _, row := range Records(res) {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (l *Lines) Close() error { return nil }
