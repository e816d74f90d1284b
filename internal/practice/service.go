// Package practice exposes the inbound comparison operation: resolve the
// clip's reference transcript, align the user's submission against it, and
// return the scored, renderable report.
package practice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hverberg/echotype/internal/align"
	"github.com/hverberg/echotype/internal/cache"
	"github.com/hverberg/echotype/internal/observe"
	"github.com/hverberg/echotype/internal/result"
	"github.com/hverberg/echotype/internal/score"
	"github.com/hverberg/echotype/internal/token"
	"github.com/hverberg/echotype/internal/transcript"
)

// defaultMaxSubmissionBytes caps submission size before tokenization.
const defaultMaxSubmissionBytes = 20000

// Input validation errors. Both are rejected before any fetch or alignment
// work happens.
var (
	ErrEmptyClipID       = errors.New("practice: clip id must not be empty")
	ErrSubmissionTooLong = errors.New("practice: submission exceeds maximum length")
)

// Option is a functional option for configuring a [Service].
type Option func(*Service)

// WithTokenizer replaces the default tokenizer. Reference and submission are
// always tokenized by the same instance so the punctuation set matches.
func WithTokenizer(t *token.Tokenizer) Option {
	return func(s *Service) { s.tokenizer = t }
}

// WithCloseThreshold sets the Jaro-Winkler similarity above which a
// substitution is rendered as a close miss. Non-positive uses the default.
func WithCloseThreshold(threshold float64) Option {
	return func(s *Service) { s.classifier = align.NewClassifier(threshold) }
}

// WithMaxSubmissionBytes caps the accepted submission size.
func WithMaxSubmissionBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSubmission = n
		}
	}
}

// WithMetrics attaches observability instruments. Nil is valid.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service is the comparison service. Alignment and scoring are pure, so a
// single Service safely serves any number of concurrent requests; the only
// shared state lives inside the [cache.Cache].
type Service struct {
	cache         *cache.Cache
	tokenizer     *token.Tokenizer
	classifier    *align.Classifier
	maxSubmission int
	metrics       *observe.Metrics
}

// New creates a [Service] on top of c.
func New(c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		cache:         c,
		tokenizer:     token.New(),
		classifier:    align.NewClassifier(0),
		maxSubmission: defaultMaxSubmissionBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Compare scores userText against the reference transcript for clipID.
//
// Fetch failures are surfaced verbatim as [*transcript.FetchError]; they are
// never downgraded to an empty transcript. Invalid input is rejected before
// tokenization. Given a resolved transcript, Compare cannot fail.
func (s *Service) Compare(ctx context.Context, clipID transcript.ClipID, userText string) (*result.Report, error) {
	if clipID == "" {
		return nil, ErrEmptyClipID
	}
	if len(userText) > s.maxSubmission {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrSubmissionTooLong, len(userText), s.maxSubmission)
	}

	start := time.Now()

	ref, err := s.cache.GetOrFetch(ctx, clipID)
	if err != nil {
		return nil, err
	}

	refTokens := s.tokenizer.Tokenize(ref.Text())
	subTokens := s.tokenizer.Tokenize(userText)

	script := align.Align(refTokens, subTokens)
	acc := score.Score(script)
	report := result.Assemble(script, acc, s.classifier)

	s.metrics.RecordCompare(ctx, time.Since(start).Seconds())
	return report, nil
}

// Invalidate drops the cached transcript for clipID so the next comparison
// fetches a fresh copy.
func (s *Service) Invalidate(ctx context.Context, clipID transcript.ClipID) error {
	if clipID == "" {
		return ErrEmptyClipID
	}
	return s.cache.Invalidate(ctx, clipID)
}
