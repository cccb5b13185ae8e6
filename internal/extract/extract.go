// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract downloads a web page and reduces it to its title and main
// readable text. Navigation chrome is stripped, the main content container is
// located through an ordered list of selectors, and the whole body is used as
// a capped fallback.
package extract

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/pdiddy/alif/internal/httputil"
	"github.com/pdiddy/alif/pkg/types"
)

var (
	// ErrNoContent is returned when a page yields neither a title nor text.
	ErrNoContent = errors.New("no valid content scraped")

	// ErrHTTPStatus is wrapped when the page responds with a non-2xx status.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

// stripSelector removes page chrome and non-text nodes before extraction.
const stripSelector = "nav, .menu, .navbar, .sidebar, aside, header, footer, form, script, style, noscript"

// contentSelectors locate the main content container, in priority order.
var contentSelectors = []string{
	".content",
	"#content",
	".main-content",
	"main",
	"article",
	"[role='main']",
}

const blockSelector = "p, div, section, span, li"

// structuralSelector marks blocks that contain other blocks. Such elements
// are skipped in favor of their children.
const structuralSelector = "p, div, section, li"

// Page is the readable content of one URL.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`

	// Selector is the content selector that matched, "body" for the
	// fallback, or "" when only a title was found.
	Selector string `json:"usedContentSelector,omitempty"`
}

// Extractor fetches and parses pages.
type Extractor struct {
	Client *http.Client

	// Insecure is used to retry TLS failures when Config.InsecureTLS is set.
	Insecure *http.Client

	Config types.ExtractConfig
	Logger *zap.Logger
}

// New returns an Extractor with clients built from cfg.
func New(cfg types.ExtractConfig, logger *zap.Logger) *Extractor {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		Client: httputil.NewClient(cfg.Timeout, false),
		Config: cfg,
		Logger: logger,
	}
	if cfg.InsecureTLS {
		e.Insecure = httputil.NewClient(cfg.Timeout, true)
	}
	return e
}

// Extract fetches pageURL and returns its title and main text.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (Page, error) {
	cfg := e.Config.WithDefaults()
	log := e.logger().With(zap.String("url", pageURL))

	body, err := e.fetch(ctx, e.Client, pageURL, cfg)
	if err != nil && isTLSError(err) && cfg.InsecureTLS && e.Insecure != nil {
		log.Warn("TLS verification failed, retrying without verification", zap.Error(err))
		body, err = e.fetch(ctx, e.Insecure, pageURL, cfg)
	}
	if err != nil {
		return Page{URL: pageURL}, err
	}

	page, err := e.Parse(strings.NewReader(body), pageURL)
	if err != nil {
		log.Debug("no content extracted", zap.Int("bytes", len(body)))
		return page, err
	}
	log.Debug("extracted page", zap.String("selector", page.Selector), zap.Int("chars", len(page.Content)))
	return page, nil
}

func (e *Extractor) fetch(ctx context.Context, client *http.Client, pageURL string, cfg types.ExtractConfig) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", pageURL)
	req.Header.Set("Cache-Control", "no-cache")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching %s: %w: %d", pageURL, ErrHTTPStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, cfg.MaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", pageURL, err)
	}
	return string(data), nil
}

// Parse extracts a Page from an HTML document. It returns ErrNoContent when
// neither a title nor any text was found.
func (e *Extractor) Parse(r io.Reader, pageURL string) (Page, error) {
	cfg := e.Config.WithDefaults()
	page := Page{URL: pageURL}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return page, fmt.Errorf("parsing HTML: %w", err)
	}

	page.Title = pageTitle(doc)

	doc.Find(stripSelector).Remove()
	for _, n := range doc.Nodes {
		removeComments(n)
	}

	for _, sel := range contentSelectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		text := collectBlocks(container, cfg.MinBlockLen)
		if text == "" {
			if own := collapseSpace(container.Text()); len(own) > cfg.MinBlockLen {
				text = own
			}
		}
		if text == "" {
			continue
		}
		if cfg.Format == types.FormatMarkdown {
			if md, err := toMarkdown(container, pageURL); err == nil && md != "" {
				text = md
			} else if err != nil {
				e.logger().Debug("markdown conversion failed", zap.String("url", pageURL), zap.Error(err))
			}
			page.Content = normalizeMarkdown(text)
		} else {
			page.Content = Normalize(text)
		}
		page.Selector = sel
		return page, nil
	}

	body := doc.Find("body").First()
	text := collectBlocks(body, cfg.MinBlockLen)
	if text == "" {
		if own := collapseSpace(body.Text()); len(own) > cfg.MinBlockLen {
			text = own
		}
	}
	text = Normalize(text)
	if len(text) > cfg.MaxSummaryLen {
		text = truncateUTF8(text, cfg.MaxSummaryLen) + "..."
	}
	if text != "" {
		page.Content = text
		page.Selector = "body"
	}

	if page.Content == "" && page.Title == "" {
		return page, ErrNoContent
	}
	return page, nil
}

func (e *Extractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// pageTitle returns <title>, then og:title, then twitter:title.
func pageTitle(doc *goquery.Document) string {
	if t := collapseSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok && strings.TrimSpace(t) != "" {
		return collapseSpace(t)
	}
	if t, ok := doc.Find(`meta[name="twitter:title"]`).First().Attr("content"); ok {
		return collapseSpace(t)
	}
	return ""
}

// collectBlocks joins the whitespace-collapsed text of block descendants of
// container longer than minLen. Structural blocks that wrap other blocks are
// skipped, as is a block whose text repeats the previous one.
func collectBlocks(container *goquery.Selection, minLen int) string {
	var (
		blocks []string
		last   string
	)
	container.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if !s.Is("span") && s.Find(structuralSelector).Length() > 0 {
			return
		}
		txt := collapseSpace(s.Text())
		if len(txt) <= minLen {
			return
		}
		if last != "" && strings.Contains(last, txt) {
			return
		}
		blocks = append(blocks, txt)
		last = txt
	})
	return strings.Join(blocks, "\n\n")
}

// removeComments detaches every comment node below n.
func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

// isTLSError reports whether err stems from certificate verification or a
// TLS handshake failure.
func isTLSError(err error) bool {
	var (
		verr *tls.CertificateVerificationError
		uerr x509.UnknownAuthorityError
		herr x509.HostnameError
		cerr x509.CertificateInvalidError
		rerr tls.RecordHeaderError
	)
	return errors.As(err, &verr) || errors.As(err, &uerr) || errors.As(err, &herr) ||
		errors.As(err, &cerr) || errors.As(err, &rerr)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
