package fetcher

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

type FetcherConfig struct {
	RateLimit  float64 // requests per second
	Timeout    time.Duration
	OnProgress func(url string)
}

// Fetcher pulls single articles from configured sources for the morning
// brief. Requests are rate limited per fetcher.
type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
}

type Article struct {
	URL     string
	Title   string
	Content string
}

func NewWithConfig(config FetcherConfig) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}

	return &Fetcher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Fetch downloads one page and extracts its title and readable text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Article, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", url, err)
	}

	doc.Find("script, style, nav, footer").Remove()

	article := &Article{
		URL:     url,
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Content: cleanContent(doc.Find("body").Text()),
	}

	if f.config.OnProgress != nil {
		f.config.OnProgress(url)
	}

	return article, nil
}

// FetchAll downloads every source, skipping the ones that fail.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Article {
	var articles []Article
	for _, url := range urls {
		article, err := f.Fetch(ctx, url)
		if err != nil {
			log.Printf("[fetcher] skipping %s: %v", url, err)
			continue
		}
		articles = append(articles, *article)
	}
	return articles
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}
