// Package httpprober resolves candidates with a plain HTTP GET against a URL template.
package httpprober

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/user/prober-service/internal/entity"
	"github.com/user/prober-service/internal/repository"
	"github.com/user/prober-service/pkg/utils"
)

const maxBodyBytes = 2 << 20

type Config struct {
	URLTemplate   string
	UserAgent     string
	TrialKeywords []string
	FreeKeywords  []string
	// DefaultClassification applies when no keyword matches. Empty means unknown.
	DefaultClassification entity.Classification
	DialTimeout           time.Duration
}

// Prober implements repository.Prober. Transports are cached per egress path.
type Prober struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	transports map[string]*http.Transport
}

var _ repository.Prober = (*Prober)(nil)

func New(cfg Config, logger *zap.Logger) (*Prober, error) {
	if !strings.Contains(cfg.URLTemplate, "{candidate}") {
		return nil, fmt.Errorf("url template %q has no {candidate} placeholder", cfg.URLTemplate)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.DefaultClassification == "" {
		cfg.DefaultClassification = entity.ClassificationUnknown
	}
	return &Prober{
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "httpprober")),
		transports: make(map[string]*http.Transport),
	}, nil
}

// Probe fetches the candidate page. ctx bounds the whole request.
func (p *Prober) Probe(ctx context.Context, candidate string, egress string) (*entity.ProbeResult, error) {
	target := utils.ExpandTemplate(p.cfg.URLTemplate, candidate)
	fail := func(kind, err error) (*entity.ProbeResult, error) {
		return nil, &repository.ProbeError{Kind: kind, Candidate: candidate, Egress: egress, Err: err}
	}

	transport, err := p.transport(egress)
	if err != nil {
		return fail(repository.ErrProxyFailure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fail(repository.ErrTransport, err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := &http.Client{Transport: transport}
	resp, err := client.Do(req)
	if err != nil {
		return fail(classifyError(ctx, err, egress != ""), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &entity.ProbeResult{Candidate: candidate, Exists: false}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	default:
		return fail(repository.ErrUpstreamStatus, fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fail(classifyError(ctx, err, false), err)
	}
	result := p.extract(doc, resp.Request.URL, candidate)
	p.logger.Debug("candidate resolved",
		zap.String("candidate", candidate),
		zap.String("classification", string(result.Classification)),
	)
	return result, nil
}

// Close drops idle connections of every cached transport.
func (p *Prober) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.transports {
		t.CloseIdleConnections()
	}
}

func (p *Prober) extract(doc *goquery.Document, pageURL *url.URL, candidate string) *entity.ProbeResult {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	attrs := map[string]string{"profile_url": pageURL.String()}
	if title != "" {
		attrs["title"] = title
	}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		property, _ := s.Attr("property")
		content, _ := s.Attr("content")
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		switch property {
		case "og:title", "og:description":
			attrs[property] = content
		case "og:image":
			if abs, err := utils.ToAbsoluteURL(pageURL, content); err == nil {
				content = abs
			}
			attrs[property] = content
		}
	})

	name := attrs["og:title"]
	if name == "" {
		name = title
	}
	if name == "" {
		name = candidate
	}

	text := strings.ToLower(strings.Join([]string{title, attrs["og:title"], attrs["og:description"], doc.Find("body").Text()}, " "))
	return &entity.ProbeResult{
		Candidate:      candidate,
		Exists:         true,
		DisplayName:    name,
		Classification: p.classify(text),
		Attributes:     attrs,
	}
}

// classify matches lowercased page text. Trial keywords are checked before free keywords.
func (p *Prober) classify(text string) entity.Classification {
	for _, kw := range p.cfg.TrialKeywords {
		if kw != "" && strings.Contains(text, kw) {
			return entity.ClassificationTrialOffer
		}
	}
	for _, kw := range p.cfg.FreeKeywords {
		if kw != "" && strings.Contains(text, kw) {
			return entity.ClassificationFree
		}
	}
	return p.cfg.DefaultClassification
}

func (p *Prober) transport(egress string) (*http.Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.transports[egress]; ok {
		return t, nil
	}

	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout, KeepAlive: 30 * time.Second}
	t := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if egress != "" {
		proxyURL, err := ParseEgress(egress)
		if err != nil {
			return nil, err
		}
		switch proxyURL.Scheme {
		case "http", "https":
			t.Proxy = http.ProxyURL(proxyURL)
		case "socks5", "socks5h":
			d, err := proxy.FromURL(proxyURL, dialer)
			if err != nil {
				return nil, fmt.Errorf("socks dialer for %s: %w", egress, err)
			}
			cd, ok := d.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("socks dialer for %s does not support contexts", egress)
			}
			t.DialContext = cd.DialContext
		default:
			return nil, fmt.Errorf("unsupported egress scheme %q", proxyURL.Scheme)
		}
	}

	p.transports[egress] = t
	return t, nil
}

// ParseEgress accepts host:port, user:pass@host:port or a full URL. A missing scheme means http.
func ParseEgress(egress string) (*url.URL, error) {
	raw := strings.TrimSpace(egress)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse egress %q: %w", egress, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("egress %q has no host", egress)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// classifyError maps a client error onto a probe error kind.
func classifyError(ctx context.Context, err error, viaProxy bool) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return repository.ErrProbeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return repository.ErrProbeTimeout
	}
	if viaProxy {
		var opErr *net.OpError
		if errors.As(err, &opErr) && (opErr.Op == "proxyconnect" || opErr.Op == "dial" || opErr.Op == "socks connect") {
			return repository.ErrProxyFailure
		}
		if strings.Contains(err.Error(), "proxy") || strings.Contains(err.Error(), "socks") {
			return repository.ErrProxyFailure
		}
	}
	return repository.ErrTransport
}
