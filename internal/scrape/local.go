package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/resilience"
)

const maxBodyBytes = 2 << 20

// LocalScraper fetches HTML directly and reduces it to visible text. It
// rate-limits per host so a crawl fan-out does not hammer one site.
type LocalScraper struct {
	client      *http.Client
	ratePerHost rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocalScraper creates a LocalScraper allowing ratePerHost requests per
// second to each host. A non-positive rate disables limiting.
func NewLocalScraper(ratePerHost float64) *LocalScraper {
	limit := rate.Inf
	if ratePerHost > 0 {
		limit = rate.Limit(ratePerHost)
	}
	return &LocalScraper{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		ratePerHost: limit,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (l *LocalScraper) Name() string { return "local_http" }

func (l *LocalScraper) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.ratePerHost, 1)
		l.limiters[host] = lim
	}
	return lim
}

// Scrape fetches targetURL and returns its title and whitespace-collapsed
// body text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, eris.Errorf("local_http: invalid url %q", targetURL)
	}
	if err := l.limiter(u.Host).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "local_http: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CompanyResearchBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if block := DetectBlock(resp.StatusCode, resp.Header, body); block != BlockNone {
		return nil, eris.Errorf("local_http: blocked (%s)", block)
	}
	if resp.StatusCode >= 400 {
		return nil, resilience.HTTPStatusError("local_http", resp.StatusCode, "")
	}

	title, text, err := htmlToText(body)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: parse html")
	}
	if text == "" {
		return nil, eris.New("local_http: empty page")
	}

	return &Result{
		Page: model.CrawledPage{
			URL:        targetURL,
			Title:      title,
			Text:       text,
			StatusCode: resp.StatusCode,
		},
		Source: l.Name(),
	}, nil
}

// htmlToText drops non-content elements and returns the page title and the
// body's visible text with whitespace collapsed.
func htmlToText(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	title := CollapseWhitespace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, template, svg, iframe").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
		b.WriteByte(' ')
	})
	text := b.String()
	if strings.TrimSpace(text) == "" {
		// Fragments without a body element.
		text = doc.Text()
	}
	return title, CollapseWhitespace(text), nil
}
