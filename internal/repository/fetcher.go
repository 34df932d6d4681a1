package repository

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	platformerrors "github.com/jmgilman/go/errors"
)

const (
	RequestTimeout  = 20 * time.Second
	MaxResponseSize = 8 * 1024 * 1024
	UserAgent       = "tilecache/0.1"
	// maxErrorText bounds the rendered error page carried in an error message.
	maxErrorText = 2048
)

// Fetcher downloads blobs from the platform.
type Fetcher struct {
	c *colly.Collector
}

func NewFetcher() *Fetcher {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
		colly.MaxBodySize(MaxResponseSize),
	)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 4,
	})
	c.SetRequestTimeout(RequestTimeout)
	return &Fetcher{c: c}
}

// Fetch returns the body of rawURL. Responses other than 2xx become errors
// whose message carries the rendered error page.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, platformerrors.Newf(platformerrors.CodeInvalidInput, "fetch: url must start with http:// or https://: %q", rawURL)
	}

	// A clone per call keeps callbacks from piling up on the shared collector.
	c := f.c.Clone()
	c.Context = ctx
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", UserAgent)
		r.Headers.Set("Accept", "application/octet-stream, */*;q=0.8")
	})

	var body []byte
	var status int
	var contentType string
	c.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r == nil {
			return
		}
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
	})

	err := c.Visit(rawURL)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if status != 0 {
		return nil, statusError(rawURL, status, contentType, body)
	}
	if err != nil {
		return nil, platformerrors.Wrapf(err, platformerrors.CodeNetwork, "fetch %s", rawURL)
	}
	return body, nil
}

func statusError(rawURL string, status int, contentType string, body []byte) error {
	code := platformerrors.CodeExecutionFailed
	switch {
	case status == http.StatusNotFound:
		code = platformerrors.CodeNotFound
	case status == http.StatusUnauthorized:
		code = platformerrors.CodeUnauthorized
	case status == http.StatusForbidden:
		code = platformerrors.CodeForbidden
	case status == http.StatusTooManyRequests:
		code = platformerrors.CodeRateLimit
	case status >= 500:
		code = platformerrors.CodeUnavailable
	}
	msg := "fetch " + rawURL + ": " + http.StatusText(status)
	if text := renderErrorBody(contentType, body); text != "" {
		msg += ": " + text
	}
	return platformerrors.New(code, msg)
}

// renderErrorBody turns an error page into short readable text.
func renderErrorBody(contentType string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	lowerCT := strings.ToLower(contentType)
	if !strings.Contains(lowerCT, "text/html") {
		if strings.HasPrefix(lowerCT, "text/") || strings.Contains(lowerCT, "json") {
			return clip(strings.TrimSpace(string(body)))
		}
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, iframe, svg, img, form, header, footer, nav").Remove()
	title := strings.TrimSpace(doc.Find("head > title").First().Text())

	text := ""
	if html, err := doc.Find("body").Html(); err == nil {
		if md, err := htmltomarkdown.ConvertString(html); err == nil {
			text = strings.TrimSpace(md)
		}
	}
	if text == "" {
		text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	}
	if title != "" && !strings.Contains(text, title) {
		text = strings.TrimSpace(title + "\n\n" + text)
	}
	return clip(text)
}

func clip(s string) string {
	if len(s) <= maxErrorText {
		return s
	}
	return s[:maxErrorText] + "..."
}
