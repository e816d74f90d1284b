// Package fetch implements the outbound transcript-source client. It speaks
// to a timed-text HTTP service that serves ordered transcript segments as
// JSON, trying a configurable list of language codes in order.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hverberg/echotype/internal/cache"
	"github.com/hverberg/echotype/internal/transcript"
)

// defaultLanguages is the fallback order tried when no languages are
// configured. The empty code means "the clip's original language".
var defaultLanguages = []string{"", "en", "en-US"}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithLanguages sets the language codes tried in order. An empty code asks
// the source for the clip's default track.
func WithLanguages(langs []string) Option {
	return func(c *Client) {
		if len(langs) > 0 {
			c.languages = langs
		}
	}
}

// WithHTTPClient replaces the underlying [http.Client].
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client fetches reference transcripts over HTTP. It implements
// [cache.Fetcher] and is safe for concurrent use.
type Client struct {
	baseURL    string
	languages  []string
	httpClient *http.Client
}

// Compile-time interface check.
var _ cache.Fetcher = (*Client)(nil)

// New creates a [Client] for the timed-text service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("fetch: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		languages:  defaultLanguages,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// segment is the wire shape of one timed-text segment.
type segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Fetch implements [cache.Fetcher]. It tries each configured language in
// order; a 404 means "no track in this language" and moves on to the next.
// When every language misses, the clip has no transcript and the failure is
// permanent ([transcript.KindNoTranscript]).
func (c *Client) Fetch(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
	for _, lang := range c.languages {
		segments, err := c.fetchLanguage(ctx, id, lang)
		if err == nil {
			return transcript.NewReference(id, segments, time.Now()), nil
		}

		var fe *transcript.FetchError
		if errors.As(err, &fe) && fe.Kind == transcript.KindNoTranscript {
			continue
		}
		return nil, err
	}
	return nil, transcript.NewFetchError(transcript.KindNoTranscript, id, nil)
}

// fetchLanguage requests one language track and decodes the segment list.
func (c *Client) fetchLanguage(ctx context.Context, id transcript.ClipID, lang string) ([]transcript.TimedSegment, error) {
	u := c.baseURL + "/transcripts/" + url.PathEscape(string(id))
	if lang != "" {
		u += "?lang=" + url.QueryEscape(lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, transcript.NewFetchError(transcript.KindUnavailable, id, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, transcript.NewFetchError(transcript.KindTimeout, id, err)
		}
		return nil, transcript.NewFetchError(transcript.KindUnavailable, id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Decoded below.
	case resp.StatusCode == http.StatusNotFound:
		return nil, transcript.NewFetchError(transcript.KindNoTranscript, id, nil)
	default:
		return nil, transcript.NewFetchError(transcript.KindUnavailable, id,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var wire []segment
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, transcript.NewFetchError(transcript.KindUnavailable, id,
			fmt.Errorf("decode response: %w", err))
	}

	segments := make([]transcript.TimedSegment, len(wire))
	for i, s := range wire {
		segments[i] = transcript.TimedSegment{Text: s.Text, Start: s.Start, End: s.End}
	}
	return segments, nil
}
