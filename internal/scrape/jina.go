package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/pkg/jina"
)

// JinaAdapter wraps a Jina Reader client as a Scraper. It serves pages the
// local scraper cannot render, such as JS shells and blocked sites.
type JinaAdapter struct {
	client jina.Client
}

// NewJinaAdapter creates a JinaAdapter from a Jina client.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{client: client}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Scrape reads targetURL through the Jina Reader.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := j.client.Read(ctx, targetURL)
	if err != nil {
		return nil, eris.Wrap(err, "jina: scrape")
	}
	text := CollapseWhitespace(resp.Data.Content)
	if text == "" {
		return nil, eris.Errorf("jina: empty content for %s", targetURL)
	}

	pageURL := resp.Data.URL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &Result{
		Page: model.CrawledPage{
			URL:        pageURL,
			Title:      CollapseWhitespace(resp.Data.Title),
			Text:       text,
			StatusCode: resp.Code,
		},
		Source: j.Name(),
	}, nil
}
