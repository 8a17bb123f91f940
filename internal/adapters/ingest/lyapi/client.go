// Package lyapi provides a resilient client for the ly.govapi.tw v2 catalog
// and the ivod.ly.gov.tw speech pages
package lyapi

import (
	"context"
	"crypto/tls"
	stderrs "errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/logger"
)

const (
	baseURLDefault       = "https://ly.govapi.tw/v2"
	speechBaseURLDefault = "https://ivod.ly.gov.tw"
	defaultTimeout       = 30 * time.Second
	defaultMaxRetry      = 3
	defaultRetryBase     = 500 * time.Millisecond
	defaultMinSleep      = 500 * time.Millisecond
	defaultMaxSleep      = 2 * time.Second

	// the API fronts a WAF that rejects non-browser agents
	defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/113.0.0.0 Safari/537.36"
)

// Options configures the Client
type Options struct {
	BaseURL       string
	SpeechBaseURL string
	UserAgent     string
	Timeout       time.Duration

	// SkipSSL disables certificate verification for the catalog API
	SkipSSL bool

	// Retry config for transient responses
	MaxRetries int
	RetryBase  time.Duration

	// Polite jitter between catalog requests
	MinSleep time.Duration
	MaxSleep time.Duration
}

// Client is a minimal catalog client with browser-like headers, a cookie jar,
// jittered pacing, and bounded retries
type Client struct {
	http  *http.Client
	opts  Options
	log   logger.Logger
	now   func() time.Time
	sleep func(time.Duration)
	randf func() float64
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	if o.SpeechBaseURL == "" {
		o.SpeechBaseURL = speechBaseURLDefault
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.MinSleep <= 0 {
		o.MinSleep = defaultMinSleep
	}
	if o.MaxSleep < o.MinSleep {
		o.MaxSleep = defaultMaxSleep
	}

	jar, _ := cookiejar.New(nil)
	hc := &http.Client{Timeout: o.Timeout, Jar: jar}
	if o.SkipSSL {
		hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12},
		}
	}

	return &Client{
		http:  hc,
		opts:  o,
		log:   *logger.Named("lyapi"),
		now:   time.Now,
		sleep: time.Sleep,
		randf: rand.Float64,
	}
}

// PoliteSleep blocks for a random duration in [MinSleep, MaxSleep]
func (c *Client) PoliteSleep() {
	span := c.opts.MaxSleep - c.opts.MinSleep
	c.sleep(c.opts.MinSleep + time.Duration(c.randf()*float64(span)))
}

// get issues a GET with browser headers and bounded retries, returning the body
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, perr.Wrap(ctx.Err(), perr.ErrorCodeInterrupted, "fetch cancelled")
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "lyapi new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;"+
			"q=0.9,image/avif,image/webp,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
		req.Header.Set("Connection", "keep-alive")

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			cerr := classifyTransport(err, url)
			if !perr.Transient(cerr) || !c.shouldRetry(attempts) {
				return nil, cerr
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Err(err).Msg("lyapi transport error retrying")
			c.sleep(back)
			attempts++
			continue
		}

		c.log.Debug().
			Str("url", url).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Msg("lyapi http response")

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return nil, perr.Wrapf(err, perr.ErrorCodeNetwork, "lyapi read body %s", url)
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, perr.Networkf("lyapi status %d for %s", resp.StatusCode, url)
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("status", resp.StatusCode).Msg("lyapi transient status retrying")
			c.sleep(back)
			attempts++
			continue
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return nil, perr.Networkf("lyapi unexpected status %d for %s body %s", resp.StatusCode, url, string(body))
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	ms := int64(c.opts.RetryBase / time.Millisecond)
	ms = ms << uint(attempt)
	ceiling := int64(30 * time.Second / time.Millisecond)
	if ms > ceiling {
		ms = ceiling
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}

// classifyTransport maps a transport error onto the SSL/Timeout/Network codes
func classifyTransport(err error, url string) error {
	var nerr net.Error
	switch {
	case isTLSError(err):
		return perr.Wrapf(err, perr.ErrorCodeSSL, "tls failure fetching %s", url)
	case stderrs.As(err, &nerr) && nerr.Timeout():
		return perr.Wrapf(err, perr.ErrorCodeTimeout, "timeout fetching %s", url)
	default:
		return perr.Wrapf(err, perr.ErrorCodeNetwork, "network error fetching %s", url)
	}
}

func isTLSError(err error) bool {
	var rhe tls.RecordHeaderError
	var cve *tls.CertificateVerificationError
	if stderrs.As(err, &rhe) || stderrs.As(err, &cve) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "tls:") || strings.Contains(s, "x509:")
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<20))
	return rc.Close()
}
