// Package verify decides when fetched text needs an AI match check and turns
// the judge's answer into a tri-state outcome.
package verify

import (
	"context"
	"fmt"
	"log/slog"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/ratelimit"
)

// Mode selects when verification runs.
type Mode string

const (
	ModeAlways   Mode = "always"
	ModeFallback Mode = "fallback"
	ModeShort    Mode = "short"
)

// Gate decides whether a fetched text should be verified.
type Gate struct {
	Mode           Mode
	ShortThreshold int
}

// ShouldVerify applies the configured mode. Unknown modes never verify.
func (g Gate) ShouldVerify(isFallback bool, textLength int) bool {
	switch g.Mode {
	case ModeAlways:
		return true
	case ModeFallback:
		return isFallback
	case ModeShort:
		return textLength < g.ShortThreshold
	default:
		return false
	}
}

// Request describes one piece of fetched text to check against an event.
type Request struct {
	Title      string
	Source     string
	URL        string
	Text       string
	IsFallback bool
}

// Options configure a Verifier.
type Options struct {
	Gate          Gate
	MinConfidence float64
	FailOpen      bool
	MaxChars      int
}

// Verifier checks fetched text through a rate-limited AI judge.
type Verifier struct {
	judge  ports.MatchJudge
	gate   *ratelimit.Gate
	opts   Options
	logger *slog.Logger
}

// New wires the judge with its channel gate. A nil judge makes every check
// behave like an unavailable service.
func New(judge ports.MatchJudge, gate *ratelimit.Gate, opts Options, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{judge: judge, gate: gate, opts: opts, logger: logger}
}

// ShouldVerify exposes the configured gate.
func (v *Verifier) ShouldVerify(isFallback bool, textLength int) bool {
	return v.opts.Gate.ShouldVerify(isFallback, textLength)
}

// Verify runs the gate and, when required, the judge. Judge failures never
// surface as errors: they become "unverified" with fail-open or "error".
func (v *Verifier) Verify(ctx context.Context, req Request) domain.VerifyResult {
	if !v.ShouldVerify(req.IsFallback, len([]rune(req.Text))) {
		return domain.VerifyResult{OK: true, Status: domain.VerifySkipped}
	}

	if v.gate != nil {
		if err := v.gate.Wait(ctx); err != nil {
			return v.failed(err)
		}
	}
	if v.judge == nil {
		return v.failed(fmt.Errorf("match judge is not configured"))
	}

	judgement, err := v.judge.Judge(ctx, ports.MatchRequest{
		Title:  req.Title,
		Source: req.Source,
		URL:    req.URL,
		Text:   truncate(req.Text, v.opts.MaxChars),
	})
	if err != nil {
		v.logger.Warn("verify failed", "error", err)
		return v.failed(err)
	}

	ok := judgement.Match && judgement.Confidence >= v.opts.MinConfidence
	status := domain.VerifyMismatch
	if ok {
		status = domain.VerifyOK
	}
	return domain.VerifyResult{
		OK:          ok,
		Status:      status,
		Match:       judgement.Match,
		Verified:    true,
		Confidence:  judgement.Confidence,
		Reason:      judgement.Reason,
		PageSummary: judgement.PageSummary,
		Tokens:      judgement.Tokens,
	}
}

func (v *Verifier) failed(err error) domain.VerifyResult {
	if v.opts.FailOpen {
		return domain.VerifyResult{OK: true, Status: domain.VerifyUnverified, Reason: "verification unavailable", Err: err}
	}
	return domain.VerifyResult{Status: domain.VerifyError, Reason: "verification failed", Err: err}
}

func truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
