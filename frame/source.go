// Package frame backs the settle machinery's readiness-source contract with
// a live Chrome tab: network activity counting, navigation tracking, one-shot
// network-idle and main-thread-idle callbacks, and going-away event delivery.
// All callbacks are posted onto the session's loop; nothing here touches
// monitor state directly.
package frame

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domsettle/browser"
	"github.com/hazyhaar/domsettle/sched"
	"github.com/hazyhaar/domsettle/settle"
)

// Config tunes the source.
type Config struct {
	// QuietWindow is how long the in-flight request count must stay at zero
	// before the network is considered idle. Default: 500ms.
	QuietWindow time.Duration

	// IdleEvalTimeout bounds the in-page requestIdleCallback wait.
	// Default: 1s.
	IdleEvalTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.QuietWindow <= 0 {
		c.QuietWindow = 500 * time.Millisecond
	}
	if c.IdleEvalTimeout <= 0 {
		c.IdleEvalTimeout = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Source implements settle.Frame against one tab. Create with New, then
// Attach a monitor and call Watch to begin event delivery.
type Source struct {
	tab    *browser.Tab
	loop   *sched.Loop
	cfg    Config
	logger *slog.Logger

	active   atomic.Int64
	inflight map[proto.NetworkRequestID]struct{}

	mu          sync.Mutex
	navPending  bool
	navCommitted bool
	firstNav    bool // the OpenTab navigation itself
	networkIdleFn func()
	quietTimer  *time.Timer

	monitor *settle.Monitor
}

// New creates a Source for the tab, delivering callbacks on loop.
func New(tab *browser.Tab, loop *sched.Loop, cfg Config) *Source {
	cfg.defaults()
	return &Source{
		tab:      tab,
		loop:     loop,
		cfg:      cfg,
		logger:   cfg.Logger,
		inflight: make(map[proto.NetworkRequestID]struct{}),
		firstNav: true,
	}
}

// Attach sets the monitor that receives navigation and going-away events.
// Must be called before Watch.
func (s *Source) Attach(m *settle.Monitor) { s.monitor = m }

// Watch subscribes to CDP events and delivers them until ctx is done or the
// page closes. Call once, after Attach.
func (s *Source) Watch(ctx context.Context) {
	page := s.tab.Page
	mainFrame := page.FrameID

	go page.Context(ctx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			s.requestStarted(e.RequestID)
		},
		func(e *proto.NetworkLoadingFinished) {
			s.requestFinished(e.RequestID)
		},
		func(e *proto.NetworkLoadingFailed) {
			s.requestFinished(e.RequestID)
		},
		func(e *proto.NetworkRequestServedFromCache) {
			s.requestFinished(e.RequestID)
		},
		func(e *proto.PageFrameRequestedNavigation) {
			if e.FrameID != mainFrame {
				return
			}
			s.mu.Lock()
			s.navPending = true
			s.navCommitted = false
			s.mu.Unlock()
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ID != mainFrame {
				return
			}
			s.onNavigated()
		},
		func(e *proto.PageFrameStoppedLoading) {
			if e.FrameID != mainFrame {
				return
			}
			s.onStoppedLoading()
		},
		func(e *proto.PageFrameDetached) {
			if e.FrameID != mainFrame {
				return
			}
			s.deliverGoingAway("frame detached")
		},
		func(e *proto.PageLifecycleEvent) {
			if e.FrameID == mainFrame && e.Name == "frozen" {
				if m := s.monitor; m != nil {
					m.DocumentFrozen()
				}
			}
		},
		func(e *proto.InspectorTargetCrashed) {
			s.deliverGoingAway("target crashed")
		},
	)()
}

// ActiveRequestCount implements settle.Frame.
func (s *Source) ActiveRequestCount() int {
	return int(s.active.Load())
}

// NavigationInFlight implements settle.Frame.
func (s *Source) NavigationInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navPending
}

// RequestNetworkIdle implements settle.Frame. One-shot: fires once the
// in-flight count has stayed at zero for the quiet window.
func (s *Source) RequestNetworkIdle(fn func()) {
	s.mu.Lock()
	s.networkIdleFn = fn
	idle := s.active.Load() == 0
	s.mu.Unlock()

	if idle {
		s.armQuietTimer()
	}
}

// PostIdleTask implements settle.Frame: resolves when the page's main thread
// grants an idle callback. When the page cannot be evaluated any more (gone,
// crashed) the completion is posted after the eval timeout instead; the
// monitor's timeouts bound the wait either way.
func (s *Source) PostIdleTask(fn func(deadline time.Time)) {
	timeoutMS := s.cfg.IdleEvalTimeout.Milliseconds()
	go func() {
		_, err := s.tab.Page.Eval(`(timeout) => new Promise(resolve =>
			requestIdleCallback(() => resolve(performance.now()), {timeout}))`,
			timeoutMS)
		if err != nil {
			s.logger.Debug("frame: idle eval failed", "error", err)
		}
		s.loop.Post(func() {
			fn(s.loop.Now().Add(50 * time.Millisecond))
		})
	}()
}

func (s *Source) requestStarted(id proto.NetworkRequestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return
	}
	s.inflight[id] = struct{}{}
	s.active.Store(int64(len(s.inflight)))

	// Activity resumed; a pending quiet window no longer counts.
	if s.quietTimer != nil {
		s.quietTimer.Stop()
		s.quietTimer = nil
	}
}

func (s *Source) requestFinished(id proto.NetworkRequestID) {
	s.mu.Lock()
	if _, ok := s.inflight[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.inflight, id)
	n := int64(len(s.inflight))
	s.active.Store(n)
	waiting := s.networkIdleFn != nil
	s.mu.Unlock()

	if n == 0 && waiting {
		s.armQuietTimer()
	}
}

// armQuietTimer starts (or restarts) the quiet window that ends in the
// network-idle callback.
func (s *Source) armQuietTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.networkIdleFn == nil {
		return
	}
	if s.quietTimer != nil {
		s.quietTimer.Stop()
	}
	s.quietTimer = time.AfterFunc(s.cfg.QuietWindow, s.fireNetworkIdle)
}

func (s *Source) fireNetworkIdle() {
	s.mu.Lock()
	fn := s.networkIdleFn
	s.networkIdleFn = nil
	s.quietTimer = nil
	still := s.active.Load() == 0
	s.mu.Unlock()

	if fn == nil {
		return
	}
	if !still {
		// A request slipped in as the timer fired; re-register and wait
		// for the next quiet window.
		s.mu.Lock()
		s.networkIdleFn = fn
		s.mu.Unlock()
		return
	}
	s.loop.Post(fn)
}

func (s *Source) onNavigated() {
	s.mu.Lock()
	first := s.firstNav
	s.firstNav = false
	s.navPending = false
	s.navCommitted = true
	s.mu.Unlock()

	if first {
		// The navigation OpenTab issued; the document being observed is the
		// one it produces.
		return
	}
	if m := s.monitor; m != nil {
		m.NavigationCommitted()
	}
}

func (s *Source) onStoppedLoading() {
	s.mu.Lock()
	failed := s.navPending && !s.navCommitted
	s.navPending = false
	s.mu.Unlock()

	// Loading stopped without a commit: the provisional load failed and the
	// original document is still the one on screen.
	if failed {
		if m := s.monitor; m != nil {
			m.NavigationFailed()
		}
	}
}

func (s *Source) deliverGoingAway(reason string) {
	s.logger.Debug("frame: going away", "reason", reason, "url", s.tab.PageURL)
	if m := s.monitor; m != nil {
		m.OwnerGoingAway()
	}
}
