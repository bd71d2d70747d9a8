// Package service exposes settle sessions over HTTP and MCP. Both surfaces
// funnel into the same kit.Endpoint so logging and validation happen once.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/domsettle"
	"github.com/hazyhaar/domsettle/journal"
	"github.com/hazyhaar/domsettle/kit"
	"github.com/hazyhaar/domsettle/settle"
)

// Engine is what the service needs from the settler.
type Engine interface {
	Settle(ctx context.Context, req *domsettle.Request) (*domsettle.Result, error)
	Trail(ctx context.Context, sessionID string) ([]journal.Event, error)
}

// Service serves settle sessions.
type Service struct {
	engine Engine
	logger *slog.Logger

	settleEndpoint kit.Endpoint
}

// New creates a Service around the engine.
func New(engine Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		engine: engine,
		logger: logger,
	}
	s.settleEndpoint = kit.Chain(s.loggingMiddleware("settle"))(s.settle)
	return s
}

// settleRequest is the wire shape shared by HTTP and MCP.
type settleRequest struct {
	URL             string `json:"url"`
	InitialDelayMS  int    `json:"initial_delay_ms,omitempty"`
	PaintStability  bool   `json:"paint_stability,omitempty"`
	Markdown        bool   `json:"markdown,omitempty"`
	PDF             bool   `json:"pdf,omitempty"`
	Screenshot      bool   `json:"screenshot,omitempty"`
	GlobalTimeoutMS int    `json:"global_timeout_ms,omitempty"`
	MinWaitMS       int    `json:"min_wait_ms,omitempty"`
}

func (r *settleRequest) validate() error {
	if r.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

func (s *Service) settle(ctx context.Context, req any) (any, error) {
	r := req.(*settleRequest)
	if err := r.validate(); err != nil {
		return nil, err
	}

	return s.engine.Settle(ctx, &domsettle.Request{
		URL:            r.URL,
		InitialDelay:   time.Duration(r.InitialDelayMS) * time.Millisecond,
		PaintStability: r.PaintStability,
		Markdown:       r.Markdown,
		PDF:            r.PDF,
		Screenshot:     r.Screenshot,
		Timeouts: settle.Timeouts{
			Global:  time.Duration(r.GlobalTimeoutMS) * time.Millisecond,
			MinWait: time.Duration(r.MinWaitMS) * time.Millisecond,
		},
	})
}

func (s *Service) loggingMiddleware(op string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			dur := time.Since(start)

			log := s.logger.With(
				"op", op,
				"transport", kit.GetTransport(ctx),
				"request_id", kit.GetRequestID(ctx),
				"duration_ms", dur.Milliseconds(),
			)
			if err != nil {
				log.Error("service: call failed", "error", err)
			} else {
				log.Info("service: call ok")
			}
			return resp, err
		}
	}
}
