package scrape

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/company-research/internal/model"
)

// Result holds a scraped page with its source.
type Result struct {
	Page   model.CrawledPage
	Source string // e.g. "local_http", "jina"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace joins all whitespace runs into single spaces.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
