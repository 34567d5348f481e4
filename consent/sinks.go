package consent

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/bannerclick/consent/internal/sink"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// Sink is the output interface for visit results.
type Sink = sink.Sink

// Store is the SQLite sink. It also serves stored results back by visit ID.
type Store = sink.SQLite

// ErrNotFound is returned by Store.Get for an unknown visit.
var ErrNotFound = sink.ErrNotFound

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(sink.WebhookConfig{URL: url, Logger: logger})
}

// ResultFunc is called for each finished visit.
type ResultFunc = sink.ResultFunc

// NewCallbackSink creates an in-process callback sink.
func NewCallbackSink(fn func(ctx context.Context, res *record.Result) error) Sink {
	return sink.NewCallback(fn)
}

// OpenStore opens (or creates) a SQLite result store at path.
func OpenStore(path string) (*Store, error) {
	return sink.OpenSQLite(path)
}

// OpenSinks builds the sinks listed in cfg. The first sqlite sink, if any,
// is also returned as a Store for lookups.
func OpenSinks(cfg *Config, logger *slog.Logger) (Sink, *Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		sinks []sink.Sink
		store *Store
	)
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, sink.NewStdout(nil))
		case "webhook":
			sinks = append(sinks, sink.NewWebhook(sink.WebhookConfig{URL: sc.URL, Logger: logger}))
		case "sqlite":
			s, err := sink.OpenSQLite(sc.Path)
			if err != nil {
				sink.NewFanout(logger, sinks...).Close()
				return nil, nil, fmt.Errorf("consent: open sqlite sink: %w", err)
			}
			if store == nil {
				store = s
			}
			sinks = append(sinks, s)
		default:
			sink.NewFanout(logger, sinks...).Close()
			return nil, nil, fmt.Errorf("consent: unknown sink type %q", sc.Type)
		}
	}
	return sink.NewFanout(logger, sinks...), store, nil
}
