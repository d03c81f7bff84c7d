package capabilities

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// Page is the extracted content of a scraped URL.
type Page struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ScrapeFunc fetches a URL and extracts its title and text, or fails with a
// ScrapeError.
type ScrapeFunc func(ctx context.Context, url string) (Page, error)

// Scraper fetches pages over HTTP and strips them down to title plus visible
// text.
type Scraper struct {
	httpClient *http.Client
}

// NewScraper creates a scraper. A nil httpClient falls back to
// http.DefaultClient.
func NewScraper(httpClient *http.Client) *Scraper {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Scraper{httpClient: httpClient}
}

// Scrape fetches the URL and extracts title and text content.
func (s *Scraper) Scrape(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, Errorf(ErrorKindScrape, "invalid url %s: %v", url, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Page{}, Errorf(ErrorKindTimeout, "fetch of %s timed out", url)
		}

		return Page{}, Errorf(ErrorKindScrape, "failed to fetch %s: %v", url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return Page{}, Errorf(ErrorKindScrape, "fetch of %s returned status %d", url, resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return Page{}, Errorf(ErrorKindScrape, "failed to parse %s: %v", url, err)
	}

	return extractPage(root), nil
}

func extractPage(root *html.Node) Page {
	var page Page

	var fragments []string

	var walk func(node *html.Node, skip bool)
	walk = func(node *html.Node, skip bool) {
		if node.Type == html.ElementNode {
			switch node.Data {
			case "title":
				if node.FirstChild != nil && page.Title == "" {
					page.Title = strings.TrimSpace(node.FirstChild.Data)
				}

				return
			case "script", "style", "noscript":
				skip = true
			}
		}

		if node.Type == html.TextNode && !skip {
			if text := strings.TrimSpace(node.Data); text != "" {
				fragments = append(fragments, text)
			}
		}

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child, skip)
		}
	}

	walk(root, false)

	page.Text = strings.Join(fragments, " ")

	return page
}
