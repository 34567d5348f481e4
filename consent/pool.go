// CLAUDE:SUMMARY Worker pool over one Chrome manager: per-worker sessions, replacement after fatal faults, domain list batches.
package consent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/bannerclick/consent/internal/browser"
	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/session"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// recycleCooldown keeps concurrent workers from recycling Chrome in a loop
// after the same crash.
const recycleCooldown = 30 * time.Second

// opener creates one browser session.
type opener func(ctx context.Context) (dom.Driver, func() error, error)

// Pool runs visits on worker sessions of a shared Chrome process. Each
// worker owns its session; a session is replaced after a fatal fault or
// after VisitsPerSession visits.
type Pool struct {
	eng        *Engine
	mgr        *browser.Manager
	open       opener
	workers    int
	perSession int
	sem        chan struct{}
	logger     *slog.Logger

	mu          sync.Mutex
	lastRecycle time.Time
}

// NewPool creates a Pool whose sessions are stealth tabs of a Chrome
// configured by cfg.Browser. Call Start before running visits.
func NewPool(eng *Engine, cfg *Config) *Pool {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Stealth:          browser.ParseStealth(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		ViewportWidth:    cfg.Browser.ViewportWidth,
		ViewportHeight:   cfg.Browser.ViewportHeight,
		Logger:           eng.logger,
	})
	p := newPool(eng, cfg.Workers.Count, cfg.Workers.VisitsPerSession, nil)
	p.mgr = mgr
	p.open = func(ctx context.Context) (dom.Driver, func() error, error) {
		d, err := browser.OpenSession(ctx, mgr)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	}
	return p
}

func newPool(eng *Engine, workers, perSession int, open opener) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		eng:        eng,
		open:       open,
		workers:    workers,
		perSession: perSession,
		sem:        make(chan struct{}, workers),
		logger:     eng.logger,
	}
}

// Start launches Chrome.
func (p *Pool) Start(ctx context.Context) error {
	if p.mgr == nil {
		return nil
	}
	if err := p.mgr.Start(ctx); err != nil {
		return fmt.Errorf("consent: start browser: %w", err)
	}
	return nil
}

// Close shuts Chrome down. The engine's sink is left open.
func (p *Pool) Close() error {
	if p.mgr == nil {
		return nil
	}
	return p.mgr.Close()
}

// Visit runs one visit on a fresh session. At most Workers visits run at
// once. A dead session is reported after the visit was persisted.
func (p *Pool) Visit(ctx context.Context, domain string) (*record.Result, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	w, err := p.newWorker(ctx)
	if err != nil {
		return p.eng.fail(ctx, domain, err), err
	}
	defer w.close()
	return p.eng.Visit(ctx, w.s, domain)
}

// Run visits every domain with Workers parallel sessions and returns when
// the list is exhausted or ctx is done.
func (p *Pool) Run(ctx context.Context, domains []string) error {
	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id, jobs)
		}(i)
	}

feed:
	for _, d := range domains {
		select {
		case jobs <- d:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) work(ctx context.Context, id int, jobs <-chan string) {
	log := p.logger.With("worker", id)
	var w *worker
	defer func() {
		if w != nil {
			w.close()
		}
	}()

	for domain := range jobs {
		if ctx.Err() != nil {
			return
		}
		if w == nil {
			var err error
			if w, err = p.newWorker(ctx); err != nil {
				log.Error("consent: open session", "domain", domain, "error", err)
				p.eng.fail(ctx, domain, err)
				continue
			}
		}

		_, err := p.eng.Visit(ctx, w.s, domain)
		switch {
		case dom.IsFatal(err):
			log.Warn("consent: session died, replacing", "domain", domain, "error", err)
			w.close()
			w = nil
		case err != nil:
			return
		case p.perSession > 0 && w.s.Visits() >= p.perSession:
			log.Debug("consent: session visit budget reached", "visits", w.s.Visits())
			w.close()
			w = nil
		}
	}
}

type worker struct {
	s     *session.Session
	close func() error
}

// newWorker opens a session. When the browser refuses a new tab it is
// recycled once and the open retried.
func (p *Pool) newWorker(ctx context.Context) (*worker, error) {
	drv, closeFn, err := p.open(ctx)
	if err != nil && p.mgr != nil && dom.IsFatal(err) && p.recycle(ctx) {
		drv, closeFn, err = p.open(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &worker{s: p.eng.NewSession(drv), close: closeFn}, nil
}

func (p *Pool) recycle(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.lastRecycle) < recycleCooldown {
		return true
	}
	p.lastRecycle = time.Now()
	if err := p.mgr.Recycle(ctx); err != nil {
		p.logger.Error("consent: recycle browser", "error", err)
		return false
	}
	return true
}

// ReadDomains reads one domain per line. Blank lines are skipped and
// reading stops at the first line starting with '#' or '$'.
func ReadDomains(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "$") {
			break
		}
		if line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("consent: read domains: %w", err)
	}
	return out, nil
}
