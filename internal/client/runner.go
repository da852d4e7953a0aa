package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/efreitasn/stockserver/internal/protocol"
	"golang.org/x/sync/errgroup"
)

// Failure describes one check that did not pass.
type Failure struct {
	Block    int
	Request  string
	Expected string
	Got      string
	Err      error
}

func (f Failure) String() string {
	if f.Err != nil {
		return fmt.Sprintf("block #%d: request %q: %v", f.Block, f.Request, f.Err)
	}
	return fmt.Sprintf("block #%d: invalid msg from server. Expected: %q but got %q (request %q)",
		f.Block, f.Expected, f.Got, f.Request)
}

// Report summarizes a script run.
type Report struct {
	Blocks    int
	Requests  int
	Failures  []Failure
	Abandoned int // nowait requests still pending when the run ended
}

// OK reports whether every executed check passed.
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// Options tunes a Runner. Out receives progress lines and, with Verbose,
// every full response. DrainTimeout bounds how long Run waits for nowait
// requests after the last block; zero means do not wait at all.
type Options struct {
	Out          io.Writer
	Verbose      bool
	DrainTimeout time.Duration
}

// Runner executes scripts against a Client.
type Runner struct {
	client *Client
	opts   Options
	logger *slog.Logger

	outMu sync.Mutex
	mu    sync.Mutex
	rep   *Report
}

// NewRunner creates a Runner.
func NewRunner(c *Client, opts Options, logger *slog.Logger) *Runner {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{client: c, opts: opts, logger: logger}
}

// Run executes every block of script in order. Check failures are
// collected in the report; the returned error is only set when ctx ends
// the run early.
func (r *Runner) Run(ctx context.Context, script *Script) (*Report, error) {
	r.mu.Lock()
	r.rep = &Report{}
	r.mu.Unlock()

	// nowait waves run on their own context so that the drain deadline,
	// not the end of Run, decides when they are abandoned.
	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer bgCancel()
	stop := context.AfterFunc(ctx, bgCancel)
	defer stop()
	var background sync.WaitGroup

	var runErr error
	for i, block := range script.Blocks {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		for rep := 0; rep < block.Reps; rep++ {
			detach := block.Nowait && rep == block.Reps-1
			r.runWaves(ctx, bgCtx, i, block, detach, &background)
		}
		r.mu.Lock()
		r.rep.Blocks++
		r.mu.Unlock()
		r.printf("Finished block #%d testing phase.\n", i)
	}
	if len(script.Trailing) > 0 {
		r.logger.Warn("ignoring checks not followed by run or nowait",
			slog.Int("count", len(script.Trailing)),
		)
	}

	r.drain(&background)
	bgCancel()
	background.Wait()

	r.mu.Lock()
	rep := r.rep
	r.mu.Unlock()
	sort.SliceStable(rep.Failures, func(a, b int) bool { return rep.Failures[a].Block < rep.Failures[b].Block })

	if runErr == nil {
		r.printf("Testing completed.\n")
	}
	return rep, runErr
}

// runWaves submits block's checks in waves of block.Threads concurrent
// requests. Detached waves are tracked in background instead of awaited.
func (r *Runner) runWaves(ctx, bgCtx context.Context, blockIdx int, block Block, detach bool, background *sync.WaitGroup) {
	for start := 0; start < len(block.Checks); start += block.Threads {
		end := min(start+block.Threads, len(block.Checks))
		wave := block.Checks[start:end]

		if detach {
			for _, check := range wave {
				check := check
				background.Add(1)
				go func() {
					defer background.Done()
					r.check(bgCtx, blockIdx, check, true)
				}()
			}
			continue
		}

		var g errgroup.Group
		for _, check := range wave {
			check := check
			g.Go(func() error {
				r.check(ctx, blockIdx, check, false)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// drain waits for detached requests for at most DrainTimeout.
func (r *Runner) drain(background *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		background.Wait()
		close(done)
	}()
	if r.opts.DrainTimeout <= 0 {
		select {
		case <-done:
		default:
		}
		return
	}
	timer := time.NewTimer(r.opts.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
}

func (r *Runner) check(ctx context.Context, blockIdx int, c Check, detached bool) {
	resp, err := r.client.Do(ctx, c.Request)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rep.Requests++

	if err != nil && detached && errors.Is(err, context.Canceled) {
		r.rep.Abandoned++
		return
	}
	if r.opts.Verbose && resp.Status != "" {
		r.printResponse(resp)
	}

	switch {
	case err != nil && !errors.Is(err, protocol.ErrContentLength):
		r.fail(Failure{Block: blockIdx, Request: c.Request, Expected: c.Expected, Err: err})
	case err != nil:
		r.fail(Failure{Block: blockIdx, Request: c.Request, Expected: c.Expected, Got: resp.Body, Err: err})
	case resp.Body != c.Expected:
		r.fail(Failure{Block: blockIdx, Request: c.Request, Expected: c.Expected, Got: resp.Body})
	}
}

// fail records f. Callers hold r.mu.
func (r *Runner) fail(f Failure) {
	r.rep.Failures = append(r.rep.Failures, f)
	r.logger.Debug("check failed", slog.String("failure", f.String()))
}

func (r *Runner) printResponse(resp protocol.Response) {
	var sb strings.Builder
	sb.WriteString(resp.Status)
	sb.WriteByte('\n')
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			fmt.Fprintf(&sb, "%s: %s\n", k, v)
		}
	}
	sb.WriteByte('\n')
	sb.WriteString(resp.Body)
	sb.WriteString("\n--------------------------\n")
	r.printf("%s", sb.String())
}

func (r *Runner) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.opts.Out, format, args...)
}
