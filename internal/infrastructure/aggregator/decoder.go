// Package aggregator talks to the news aggregator: it decodes redirect links
// to publisher URLs and runs the aggregator's own news search.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/ratelimit"
)

// ErrRateLimited reports an HTTP 429 from the aggregator. The decoder makes
// no further attempts after it.
var ErrRateLimited = errors.New("aggregator rate limited")

const (
	batchPath   = "/_/DotsSplashUi/data/batchexecute"
	maxBodySize = 4 << 20
)

// Decoder resolves aggregator article links to the publisher URL.
type Decoder struct {
	client   *http.Client
	baseURL  string
	gate     *ratelimit.Gate
	attempts int
	logger   *slog.Logger
}

var _ ports.URLDecoder = (*Decoder)(nil)

// NewDecoder builds a decoder. Every Decode call passes gate once and then
// makes up to attempts tries.
func NewDecoder(client *http.Client, baseURL string, gate *ratelimit.Gate, attempts int, logger *slog.Logger) *Decoder {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		gate:     gate,
		attempts: attempts,
		logger:   logger,
	}
}

// Decode returns the publisher URL behind gnURL.
func (d *Decoder) Decode(ctx context.Context, gnURL string) (string, error) {
	id, err := articleID(gnURL)
	if err != nil {
		return "", err
	}
	if d.gate != nil {
		if err := d.gate.Wait(ctx); err != nil {
			return "", err
		}
	}
	d.logger.Info("decoding url", "gn_url", gnURL)

	var decoded string
	err = ratelimit.Retry(ctx, ratelimit.Policy{Attempts: d.attempts}, func(attempt int) error {
		out, err := d.decodeOnce(ctx, id)
		if err != nil {
			d.logger.Warn("decode attempt failed", "attempt", attempt, "error", err)
			if errors.Is(err, ErrRateLimited) || ctx.Err() != nil {
				return ratelimit.Permanent(err)
			}
			return err
		}
		decoded = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", gnURL, err)
	}
	return decoded, nil
}

func (d *Decoder) decodeOnce(ctx context.Context, id string) (string, error) {
	sg, ts, err := d.signature(ctx, id)
	if err != nil {
		return "", err
	}

	quotedID, _ := json.Marshal(id)
	quotedSG, _ := json.Marshal(sg)
	inner := fmt.Sprintf(`["garturlreq",[["X","X",["X","X"],null,null,1,1,"US:en",null,1,null,null,null,null,null,0,1],"X","X",1,[1,1,1],1,1,null,0,0,null,0],%s,%s,%s]`,
		quotedID, ts, quotedSG)
	freq, err := json.Marshal([][][]string{{{"Fbv4je", inner}}})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	form := url.Values{}
	form.Set("f.req", string(freq))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+batchPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("batchexecute: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read batchexecute: %w", err)
	}
	return parseBatchResponse(string(body))
}

// signature reads the per-article tokens the batch endpoint requires.
func (d *Decoder) signature(ctx context.Context, id string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/articles/"+url.PathEscape(id), nil)
	if err != nil {
		return "", "", fmt.Errorf("new request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch article page: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", "", err
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", "", fmt.Errorf("parse article page: %w", err)
	}
	div := doc.Find("c-wiz > div[jscontroller]").First()
	sg, okSG := div.Attr("data-n-a-sg")
	ts, okTS := div.Attr("data-n-a-ts")
	if !okSG || !okTS || strings.TrimSpace(ts) == "" {
		return "", "", errors.New("article page has no signature")
	}
	return sg, strings.TrimSpace(ts), nil
}

func parseBatchResponse(body string) (string, error) {
	parts := strings.Split(body, "\n\n")
	if len(parts) < 2 {
		return "", errors.New("unexpected batchexecute response")
	}
	var outer [][]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(parts[1])), &outer); err != nil {
		return "", fmt.Errorf("decode batchexecute envelope: %w", err)
	}
	if len(outer) == 0 || len(outer[0]) < 3 {
		return "", errors.New("empty batchexecute envelope")
	}
	payload, ok := outer[0][2].(string)
	if !ok {
		return "", errors.New("batchexecute payload is not a string")
	}
	var inner []any
	if err := json.Unmarshal([]byte(payload), &inner); err != nil {
		return "", fmt.Errorf("decode batchexecute payload: %w", err)
	}
	if len(inner) < 2 {
		return "", errors.New("batchexecute payload has no url")
	}
	decoded, ok := inner[1].(string)
	if !ok || strings.TrimSpace(decoded) == "" {
		return "", errors.New("batchexecute payload has no url")
	}
	return decoded, nil
}

func articleID(gnURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(gnURL))
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", gnURL, err)
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	id := segments[len(segments)-1]
	if id == "" {
		return "", fmt.Errorf("no article id in %q", gnURL)
	}
	return id, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, resp.Request.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("aggregator error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return nil
}
