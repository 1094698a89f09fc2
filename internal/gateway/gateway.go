// Package gateway is the single boundary between the engine and a model
// backend. It bounds every call by a timeout and reports failures as one of
// three kinds. It never retries and never invents a reply.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jwebster45206/npc-engine/internal/services"
	"github.com/jwebster45206/npc-engine/internal/telemetry"
	"github.com/jwebster45206/npc-engine/pkg/chat"
	"github.com/jwebster45206/npc-engine/pkg/prompts"
)

// Kind classifies a failed model call.
type Kind string

const (
	KindUnreachable  Kind = "unreachable"
	KindTimedOut     Kind = "timed_out"
	KindBackendError Kind = "backend_error"
)

var (
	ErrUnreachable  = errors.New("model backend unreachable")
	ErrTimedOut     = errors.New("model call timed out")
	ErrBackendError = errors.New("model backend error")

	// ErrCanceled reports that the caller abandoned the call. It is not a
	// Failure and must not be retried.
	ErrCanceled = errors.New("model call canceled")

	errEmptyReply = errors.New("empty reply")
)

// Failure is a classified model call error. errors.Is matches both the
// kind's sentinel and the underlying cause.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.sentinel(), f.Err)
}

func (f *Failure) Unwrap() []error {
	return []error{f.sentinel(), f.Err}
}

func (f *Failure) sentinel() error {
	switch f.Kind {
	case KindUnreachable:
		return ErrUnreachable
	case KindTimedOut:
		return ErrTimedOut
	default:
		return ErrBackendError
	}
}

// IsFailure reports whether err is a classified gateway failure, i.e. one
// the orchestrator may retry.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// Gateway invokes a model backend.
type Gateway struct {
	llm    services.LLMService
	logger *slog.Logger
}

func New(llm services.LLMService, logger *slog.Logger) *Gateway {
	return &Gateway{llm: llm, logger: logger}
}

// Backend returns the wrapped service, e.g. for readiness checks.
func (g *Gateway) Backend() services.LLMService {
	return g.llm
}

// Invoke sends an assembled structured prompt and returns the raw reply.
func (g *Gateway) Invoke(ctx context.Context, mc prompts.ModelContext, timeout time.Duration) (string, error) {
	return g.InvokeMessages(ctx, mc.Messages(), timeout)
}

type result struct {
	resp *chat.ChatResponse
	err  error
}

// InvokeMessages sends messages and waits at most timeout for the reply.
// A backend that ignores its context does not hold the caller past the
// timeout.
func (g *Gateway) InvokeMessages(ctx context.Context, messages []chat.ChatMessage, timeout time.Duration) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "gateway.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gateway.messages", len(messages)),
		attribute.String("gateway.timeout", timeout.String()),
	)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		resp, err := g.llm.GetChatResponse(callCtx, messages)
		done <- result{resp: resp, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = result{err: callCtx.Err()}
	}

	reply, err := g.finish(ctx, callCtx, res)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("gateway.outcome", outcome(err)))
		g.logger.Warn("Model call failed",
			"outcome", outcome(err),
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
		return "", err
	}

	span.SetAttributes(attribute.String("gateway.outcome", "ok"))
	g.logger.Debug("Model call completed",
		"duration_ms", elapsed.Milliseconds(),
		"reply_length", len(reply))
	return reply, nil
}

func (g *Gateway) finish(parent, callCtx context.Context, res result) (string, error) {
	if res.err == nil {
		if res.resp == nil || strings.TrimSpace(res.resp.Message) == "" {
			return "", &Failure{Kind: KindBackendError, Err: errEmptyReply}
		}
		return res.resp.Message, nil
	}
	return "", classify(parent, callCtx, res.err)
}

// classify maps a backend error onto a failure kind. Caller cancellation
// takes precedence over everything else.
func classify(parent, callCtx context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &Failure{Kind: KindTimedOut, Err: err}
	}

	var statusErr *services.StatusError
	if errors.As(err, &statusErr) {
		return &Failure{Kind: KindBackendError, Err: err}
	}
	if isUnreachable(err) {
		return &Failure{Kind: KindUnreachable, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: KindTimedOut, Err: err}
	}
	return &Failure{Kind: KindBackendError, Err: err}
}

func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout() {
		return true
	}
	return false
}

func outcome(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return string(f.Kind)
	}
	if errors.Is(err, ErrCanceled) {
		return "canceled"
	}
	return "error"
}
