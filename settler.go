// Package domsettle decides when a live web document has settled after an
// action and captures it at that moment. A session opens a tab, watches the
// page's network, navigation, main-thread and paint signals through a
// single-goroutine state machine, and resolves exactly once: stability
// reached, timeout, or the document went away.
package domsettle

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domsettle/browser"
	"github.com/hazyhaar/domsettle/capture"
	"github.com/hazyhaar/domsettle/frame"
	"github.com/hazyhaar/domsettle/idgen"
	"github.com/hazyhaar/domsettle/journal"
	"github.com/hazyhaar/domsettle/sched"
	"github.com/hazyhaar/domsettle/settle"
)

// Request describes one settle session.
type Request struct {
	URL string `json:"url"`

	// InitialDelay defers monitoring so the action's consequences can begin.
	// Zero uses the configured default.
	InitialDelay time.Duration `json:"-"`

	// PaintStability enables the screenshot-hash sampler as an additional
	// stability signal.
	PaintStability bool `json:"paint_stability"`

	// Artifact selection.
	Markdown   bool `json:"markdown"`
	PDF        bool `json:"pdf"`
	Screenshot bool `json:"screenshot"`

	// Timeouts overrides the configured budget when any field is nonzero.
	Timeouts settle.Timeouts `json:"-"`
}

// Result is the outcome of one settle session.
type Result struct {
	SessionID string            `json:"session_id"`
	URL       string            `json:"url"`
	Outcome   string            `json:"outcome"` // final state name
	Duration  time.Duration     `json:"duration"`
	Trail     []journal.Event   `json:"trail"`
	Artifact  *capture.Artifact `json:"artifact,omitempty"`
}

// Settler runs settle sessions against a shared browser.
type Settler struct {
	cfg      *Config
	logger   *slog.Logger
	mgr      *browser.Manager
	observer *capture.Observer
	newID    idgen.Generator

	db    *sql.DB
	store *journal.Store
}

// NewSettler creates a Settler from config. Call Start before Settle.
func NewSettler(cfg *Config, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Settler{
		cfg:    cfg,
		logger: logger,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:       cfg.Browser.Remote,
			Headful:         cfg.Browser.Stealth == "headful",
			RecycleInterval: cfg.Browser.RecycleInterval,
			Logger:          logger,
		}),
		observer: capture.NewObserver(),
		newID:    idgen.Prefixed("sess_", idgen.UUIDv7()),
	}
}

// Start launches the browser and, when configured, opens the journal store.
func (s *Settler) Start(ctx context.Context) error {
	if path := s.cfg.Journal.DBPath; path != "" {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return fmt.Errorf("domsettle: open journal db: %w", err)
		}
		s.db = db
		s.store = journal.NewStore(db)
		if err := s.store.Init(); err != nil {
			return fmt.Errorf("domsettle: init journal store: %w", err)
		}
	}

	if err := s.mgr.Start(ctx); err != nil {
		return fmt.Errorf("domsettle: browser: %w", err)
	}
	return nil
}

// Stop releases the browser and flushes the journal store.
func (s *Settler) Stop() error {
	err := s.mgr.Close()
	if s.store != nil {
		s.store.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}

// Trail returns the persisted transition trail for a past session. Only
// available when a journal DB is configured.
func (s *Settler) Trail(ctx context.Context, sessionID string) ([]journal.Event, error) {
	if s.store == nil {
		return nil, fmt.Errorf("domsettle: no journal store configured")
	}
	return s.store.Trail(ctx, sessionID)
}

// Settle runs one full session: open the page, wait until it is stable (or
// the budget runs out, or the document goes away), then capture it.
func (s *Settler) Settle(ctx context.Context, req *Request) (*Result, error) {
	sessionID := s.newID()
	log := s.logger.With("session", sessionID, "url", req.URL)
	start := time.Now()

	tab, err := browser.OpenTab(ctx, s.mgr, req.URL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("domsettle: open tab: %w", err)
	}
	defer tab.Close()

	loop := sched.New()
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go loop.Run(loopCtx)

	jr := journal.New(sessionID, s.logger, s.store)

	src := frame.New(tab, loop, frame.Config{
		QuietWindow: s.cfg.Settle.QuietWindow,
		Logger:      s.logger,
	})

	opts := []settle.Option{
		settle.WithJournal(jr),
		settle.WithTimeouts(s.timeouts(req)),
	}
	if req.PaintStability && s.cfg.Paint.Enabled {
		opts = append(opts, settle.WithPaintMonitor(frame.NewPaintSampler(tab.Page, loop, frame.PaintConfig{
			Interval:     s.cfg.Paint.Interval,
			StableFrames: s.cfg.Paint.StableFrames,
			Logger:       s.logger,
		})))
	}

	done := make(chan struct{})
	var mon *settle.Monitor

	loop.Post(func() {
		mon = settle.NewMonitor(loop, src, opts...)
		src.Attach(mon)
		src.Watch(loopCtx)

		delay := req.InitialDelay
		if delay == 0 {
			delay = s.cfg.Settle.InitialDelay
		}
		mon.NotifyWhenStable(delay, func() {
			close(done)
		})
	})

	select {
	case <-done:
	case <-ctx.Done():
		loop.Post(func() { mon.Close() })
		return nil, fmt.Errorf("domsettle: settle: %w", ctx.Err())
	}

	dur := time.Since(start)
	res := &Result{
		SessionID: sessionID,
		URL:       tab.PageURL,
		Outcome:   resolution(jr.Events()),
		Duration:  dur,
		Trail:     jr.Events(),
	}
	log.Info("settle: session resolved", "outcome", res.Outcome, "duration_ms", dur.Milliseconds())

	// The page may already be gone (teardown resolved the session); capture
	// failure is reported alongside what was decided, not instead of it.
	art, err := s.observer.Observe(ctx, tab, capture.Options{
		Markdown:   req.Markdown,
		PDF:        req.PDF,
		Screenshot: req.Screenshot,
	})
	if err != nil {
		log.Warn("settle: capture failed", "error", err)
		return res, nil
	}
	res.Artifact = art
	return res, nil
}

func (s *Settler) timeouts(req *Request) settle.Timeouts {
	t := settle.Timeouts{
		Global:              s.cfg.Settle.GlobalTimeout,
		MainThread:          s.cfg.Settle.MainThreadTimeout,
		MinWait:             s.cfg.Settle.MinWait,
		InvokeCallbackDelay: s.cfg.Settle.InvokeCallbackDelay,
	}
	if req.Timeouts.Global > 0 {
		t.Global = req.Timeouts.Global
	}
	if req.Timeouts.MainThread > 0 {
		t.MainThread = req.Timeouts.MainThread
	}
	if req.Timeouts.MinWait > 0 {
		t.MinWait = req.Timeouts.MinWait
	}
	if req.Timeouts.InvokeCallbackDelay > 0 {
		t.InvokeCallbackDelay = req.Timeouts.InvokeCallbackDelay
	}
	return t
}

// resolution pulls the state that led into InvokeCallback out of the trail:
// the reason the session resolved (stability, a timeout, or teardown). Every
// resolved session ends InvokeCallback → Done, so that edge always exists.
func resolution(events []journal.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Message != "settle: state" {
			continue
		}
		// Attrs are "k=v" pairs joined by spaces; the transition event
		// carries "from=X to=Y".
		fields := strings.Fields(events[i].Attrs)
		var from, to string
		for _, kv := range fields {
			if v, ok := strings.CutPrefix(kv, "from="); ok {
				from = v
			}
			if v, ok := strings.CutPrefix(kv, "to="); ok {
				to = v
			}
		}
		if to == "InvokeCallback" {
			return from
		}
	}
	return "unknown"
}
