// Package server runs the stock protocol listener loop and its per-connection
// workers.
package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/efreitasn/stockserver/internal/admission"
	"github.com/efreitasn/stockserver/internal/domain"
	"github.com/efreitasn/stockserver/internal/protocol"
	"github.com/efreitasn/stockserver/internal/service"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Processor applies one decoded transaction.
type Processor interface {
	Process(ctx context.Context, tx service.Transaction) service.Result
}

// Options holds optional server tuning. The zero value means no read or
// write deadlines and no accept throttling.
type Options struct {
	ReadTimeout  time.Duration // deadline for reading the request
	WriteTimeout time.Duration // deadline for writing the response
	AcceptRate   float64       // accepted connections per second, 0 = unlimited
	AcceptBurst  int
}

// Server accepts connections and hands each to a worker goroutine once the
// admission controller grants it a slot.
type Server struct {
	ln      net.Listener
	ctrl    *admission.Controller
	svc     Processor
	limiter *rate.Limiter
	opts    Options
	logger  *slog.Logger

	// ctx is the parent of every transaction; Shutdown cancels it to wake
	// buys that are still waiting for supply.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu orders closing against wg.Add so Shutdown never waits on a
	// counter that can still grow.
	mu      sync.Mutex
	closing atomic.Bool
}

// New creates a Server on an already bound listener.
func New(ln net.Listener, ctrl *admission.Controller, svc Processor, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ln:     ln,
		ctrl:   ctrl,
		svc:    svc,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	if opts.AcceptRate > 0 {
		burst := opts.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.AcceptRate), burst)
	}
	return s
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or Shutdown is called.
// Workers are not joined here; each runs to completion on its own.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	// Closing the listener is the only way to unblock Accept.
	stopAccept := context.AfterFunc(ctx, func() { _ = s.ln.Close() })
	defer stopAccept()

	var tempDelay time.Duration
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return s.serveErr(ctx)
			}
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.closing.Load() {
				return s.serveErr(ctx)
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			// Anything else (EMFILE, ECONNABORTED, ...) is retried; the
			// loop only ends on shutdown.
			tempDelay = nextDelay(tempDelay)
			s.logger.Warn("accept error, retrying",
				slog.String("error", err.Error()),
				slog.Duration("delay", tempDelay),
			)
			if !sleepCtx(ctx, tempDelay) {
				return s.serveErr(ctx)
			}
			continue
		}
		tempDelay = 0

		if err := s.ctrl.Acquire(ctx); err != nil {
			_ = conn.Close()
			return s.serveErr(ctx)
		}
		if !s.track() {
			s.ctrl.Release()
			_ = conn.Close()
			return s.serveErr(ctx)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) serveErr(ctx context.Context) error {
	if s.closing.Load() {
		return ErrServerClosed
	}
	return ctx.Err()
}

// track registers a worker unless Shutdown has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.wg.Add(1)
	return true
}

// sleepCtx waits for d and reports whether ctx was still live afterwards.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// handleConn serves one request. The caller has already taken an admission
// slot; it is released as soon as the transaction is done, before the
// response is written.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	logger := s.logger.With(
		slog.String("conn_id", uuid.New().String()),
		slog.String("remote", conn.RemoteAddr().String()),
	)

	released := false
	release := func() {
		if !released {
			released = true
			s.ctrl.Release()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		release()
		_ = conn.Close()
	}()

	if s.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
	req, err := protocol.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		logger.Debug("read request failed", slog.String("error", err.Error()))
		return
	}

	start := time.Now()
	tx := service.Transaction{
		Command:  domain.Command(req.Trans),
		Name:     req.Name,
		Quantity: req.Trade,
	}
	res := s.svc.Process(s.ctx, tx)
	release()

	if res.Err != nil {
		logger.Info("transaction abandoned",
			slog.String("command", req.Trans),
			slog.String("name", req.Name),
			slog.String("error", res.Err.Error()),
		)
		return
	}

	if s.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if err := protocol.WriteResponse(conn, res.Text); err != nil {
		logger.Warn("write response failed", slog.String("error", err.Error()))
		return
	}

	logger.Debug("transaction",
		slog.String("command", req.Trans),
		slog.String("name", req.Name),
		slog.Uint64("trade", req.Trade),
		slog.String("outcome", string(res.Outcome)),
		slog.Duration("duration", time.Since(start)),
	)
}

// Shutdown stops accepting, cancels waiting transactions and waits for
// in-flight workers to finish or ctx to end, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing.Store(true)
	s.mu.Unlock()
	err := s.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
