package frame

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/crypto/blake2b"

	"github.com/hazyhaar/domsettle/sched"
)

// PaintConfig tunes the sampler.
type PaintConfig struct {
	// Interval between viewport samples. Default: 200ms.
	Interval time.Duration

	// StableFrames is how many consecutive identical samples mean the paint
	// has settled. Default: 3.
	StableFrames int

	Logger *slog.Logger
}

func (c *PaintConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 200 * time.Millisecond
	}
	if c.StableFrames <= 0 {
		c.StableFrames = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// PaintSampler implements settle.PaintMonitor by hashing periodic viewport
// screenshots. The paint is stable once StableFrames consecutive samples
// hash identically.
type PaintSampler struct {
	page   *rod.Page
	loop   *sched.Loop
	cfg    PaintConfig
	logger *slog.Logger

	mu       sync.Mutex
	started  bool
	stable   bool
	waitFn   func()
	lastHash [32]byte
	run      int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPaintSampler creates a sampler for the page, posting its completion
// on loop.
func NewPaintSampler(page *rod.Page, loop *sched.Loop, cfg PaintConfig) *PaintSampler {
	cfg.defaults()
	return &PaintSampler{
		page:   page,
		loop:   loop,
		cfg:    cfg,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
}

// Start begins sampling. Idempotent.
func (p *PaintSampler) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.sample(ctx)
}

// WaitForStable registers the one-shot completion. If stability was already
// reached, fn runs synchronously.
func (p *PaintSampler) WaitForStable(fn func()) {
	p.mu.Lock()
	if p.stable {
		p.mu.Unlock()
		fn()
		return
	}
	p.waitFn = fn
	p.mu.Unlock()
}

// Close stops sampling and drops any registered completion. Idempotent.
func (p *PaintSampler) Close() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.waitFn = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-p.done
	}
}

func (p *PaintSampler) sample(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		shot, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
			Format:  proto.PageCaptureScreenshotFormatJpeg,
			Quality: intPtr(40),
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Debug("frame: paint sample failed", "error", err)
			continue
		}

		if p.observe(blake2b.Sum256(shot)) {
			return
		}
	}
}

// observe folds one sample in and reports whether sampling is finished.
func (p *PaintSampler) observe(h [32]byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h == p.lastHash {
		p.run++
	} else {
		p.lastHash = h
		p.run = 1
	}
	if p.run < p.cfg.StableFrames {
		return false
	}

	p.stable = true
	if fn := p.waitFn; fn != nil {
		p.waitFn = nil
		p.loop.Post(fn)
	}
	return true
}

func intPtr(v int) *int { return &v }
