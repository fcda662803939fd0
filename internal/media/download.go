package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

// Downloader fetches the bytes behind an image URL. A returned error is
// permanent: transient failures have already been retried.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (*Downloaded, error)
}

// Downloaded is a fetched image body.
type Downloaded struct {
	URL         string
	Data        []byte
	ContentType string
}

// DownloadConfig bounds a single download.
type DownloadConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	Retries   int
	Backoff   time.Duration
	UserAgent string

	// HostRate paces requests per host in requests per second. Zero
	// disables pacing.
	HostRate  float64
	HostBurst int
}

// DefaultDownloadConfig returns the limits used when none are configured.
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		Timeout:   30 * time.Second,
		MaxBytes:  25 << 20,
		Retries:   2,
		Backoff:   500 * time.Millisecond,
		UserAgent: "listing-import/1.0",
		HostRate:  20,
		HostBurst: 10,
	}
}

var (
	errTooLarge     = errors.New("image exceeds maximum size")
	errInterstitial = errors.New("provider returned an html page instead of the file")
	errScheme       = errors.New("url must be http or https")
)

// HTTPDownloader downloads over HTTP with retries, a size ceiling and
// per-host pacing. URLs of known file-sharing providers are rewritten to
// direct-download form first.
type HTTPDownloader struct {
	client    *http.Client
	cfg       DownloadConfig
	providers []Provider

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPDownloader creates a downloader. A nil client gets one with
// cfg.Timeout; nil providers means DefaultProviders.
func NewHTTPDownloader(cfg DownloadConfig, client *http.Client, providers ...Provider) *HTTPDownloader {
	def := DefaultDownloadConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.HostBurst <= 0 {
		cfg.HostBurst = 1
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if providers == nil {
		providers = DefaultProviders()
	}
	return &HTTPDownloader{
		client:    client,
		cfg:       cfg,
		providers: providers,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Download fetches rawURL. Provider URLs try each direct-download candidate
// in order, following an HTML confirmation page once per candidate.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL string) (*Downloaded, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &DownloadError{URL: rawURL, Err: errScheme}
	}

	provider := d.providerFor(u)
	candidates := []string{u.String()}
	if provider != nil {
		candidates = provider.Candidates(u)
	}

	attempts := 0
	var last *DownloadError
	for _, candidate := range candidates {
		got, n, err := d.fetch(ctx, candidate)
		attempts += n
		if err != nil {
			last = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if provider != nil && isHTML(got) {
			page, _ := url.Parse(candidate)
			next, ok := provider.ConfirmURL(got.Data, page)
			if !ok {
				last = &DownloadError{URL: candidate, Err: errInterstitial}
				continue
			}
			got, n, err = d.fetch(ctx, next)
			attempts += n
			if err != nil {
				last = err
				continue
			}
			if isHTML(got) {
				last = &DownloadError{URL: next, Err: errInterstitial}
				continue
			}
		}

		got.URL = rawURL
		return got, nil
	}

	if last == nil {
		last = &DownloadError{Err: errors.New("no download candidates")}
	}
	return nil, &DownloadError{URL: rawURL, StatusCode: last.StatusCode, Attempts: attempts, Err: last.Err}
}

func (d *HTTPDownloader) providerFor(u *url.URL) Provider {
	for _, p := range d.providers {
		if p.Match(u) {
			return p
		}
	}
	return nil
}

// fetch GETs target, retrying network errors, 5xx and 429 with exponential
// backoff. It returns the number of attempts made.
func (d *HTTPDownloader) fetch(ctx context.Context, target string) (*Downloaded, int, *DownloadError) {
	host := ""
	if u, err := url.Parse(target); err == nil {
		host = u.Host
	}

	for attempt := 1; ; attempt++ {
		if err := d.pace(ctx, host); err != nil {
			return nil, attempt, &DownloadError{URL: target, Attempts: attempt, Err: err}
		}

		got, status, err := d.get(ctx, target)
		if err == nil && status >= 200 && status < 300 {
			return got, attempt, nil
		}

		if !transient(ctx, status, err) || attempt > d.cfg.Retries {
			if err == nil {
				err = fmt.Errorf("unexpected status %d", status)
			}
			return nil, attempt, &DownloadError{URL: target, StatusCode: status, Attempts: attempt, Err: err}
		}

		wait := d.cfg.Backoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return nil, attempt, &DownloadError{URL: target, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

func (d *HTTPDownloader) get(ctx context.Context, target string) (*Downloaded, int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, resp.StatusCode, nil
	}
	if resp.ContentLength > d.cfg.MaxBytes {
		return nil, resp.StatusCode, errTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxBytes+1))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if int64(len(data)) > d.cfg.MaxBytes {
		return nil, resp.StatusCode, errTooLarge
	}

	return &Downloaded{
		URL:         target,
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, resp.StatusCode, nil
}

func (d *HTTPDownloader) pace(ctx context.Context, host string) error {
	if d.cfg.HostRate <= 0 || host == "" {
		return nil
	}
	d.mu.Lock()
	lim, ok := d.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(d.cfg.HostRate), d.cfg.HostBurst)
		d.limiters[host] = lim
	}
	d.mu.Unlock()
	return lim.Wait(ctx)
}

func transient(ctx context.Context, status int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		var netErr net.Error
		return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET)
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func isHTML(d *Downloaded) bool {
	if strings.Contains(strings.ToLower(d.ContentType), "text/html") {
		return true
	}
	head := d.Data
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
