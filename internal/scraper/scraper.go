// Package scraper crawls websites into documents for ingestion. The crawl
// is breadth-first, stays on the start URL's origin, deduplicates visited
// pages and paces requests so target servers are not hammered.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"knowledge-rag/internal/config"
	"knowledge-rag/internal/models"
	"knowledge-rag/internal/parser"
)

const (
	fetchTimeout = 30 * time.Second

	// minContentLength filters out near-empty pages (redirect stubs,
	// cookie walls).
	minContentLength = 50
)

// Page is one scraped document.
type Page struct {
	URL     string
	Title   string
	Content string
}

// Metadata returns the ingestion metadata for this page.
func (p Page) Metadata() map[string]string {
	m := map[string]string{
		models.MetaSource: p.URL,
		models.MetaType:   models.TypeWebpage,
	}
	if p.Title != "" {
		m[models.MetaTitle] = p.Title
	}
	return m
}

// Scraper crawls a site within one origin.
type Scraper struct {
	client   *http.Client
	maxPages int
	limiter  *rate.Limiter
}

// New creates a Scraper with the configured page cap and inter-request
// delay.
func New(cfg config.CrawlerConfig) *Scraper {
	delay := time.Duration(cfg.DelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Scraper{
		client:   &http.Client{Timeout: fetchTimeout},
		maxPages: cfg.MaxPages,
		limiter:  rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Crawl fetches startURL and, when followLinks is set, walks same-origin
// links breadth-first up to the page cap. Individual page failures are
// logged and skipped; the crawl itself only fails on context cancellation.
func (s *Scraper) Crawl(ctx context.Context, startURL string, followLinks bool) ([]Page, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parsing start url: %w", err)
	}
	origin := start.Scheme + "://" + start.Host

	var pages []Page
	visited := map[string]bool{}
	queue := []string{startURL}

	for len(queue) > 0 && len(pages) < s.maxPages {
		pageURL := queue[0]
		queue = queue[1:]
		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		if err := s.limiter.Wait(ctx); err != nil {
			return pages, err
		}

		raw, err := s.fetch(ctx, pageURL)
		if err != nil {
			log.Warn().Err(err).Str("url", pageURL).Msg("scrape failed")
			continue
		}

		content, err := parser.ExtractHTMLText(raw)
		if err != nil {
			log.Warn().Err(err).Str("url", pageURL).Msg("html parse failed")
			continue
		}
		if len(content) < minContentLength {
			log.Debug().Str("url", pageURL).Int("length", len(content)).Msg("content too short")
			continue
		}

		title := parser.ExtractHTMLTitle(raw)
		if title == "" {
			title = pageURL
		}
		pages = append(pages, Page{URL: pageURL, Title: title, Content: content})

		log.Info().Str("url", pageURL).Str("title", title).Int("content_length", len(content)).Msg("scraped page")

		if followLinks {
			for _, link := range extractLinks(raw, pageURL, origin) {
				if !visited[link] {
					queue = append(queue, link)
				}
			}
		}
	}

	log.Info().Int("total_documents", len(pages)).Int("pages_visited", len(visited)).Msg("crawl complete")
	return pages, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// extractLinks returns absolute same-origin links found in the page, with
// fragments stripped and duplicates removed.
func extractLinks(raw, pageURL, origin string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(attr.Val)
				if err != nil {
					continue
				}
				abs := base.ResolveReference(ref)
				abs.Fragment = ""
				link := abs.String()
				if strings.HasPrefix(link, origin) && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}
