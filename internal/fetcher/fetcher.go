package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// MaxImageSize is the largest body FetchImage accepts.
const MaxImageSize = 5 << 20

var (
	ErrNotImage = errors.New("not an image")
	ErrTooLarge = errors.New("image exceeds size limit")
)

// Image is a downloaded picture
type Image struct {
	URL         string
	ContentType string
	Data        []byte
}

// Fetcher downloads remote images
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a Fetcher. A nil client gets a 30s timeout.
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client, userAgent: "speechparts/1.0"}
}

// FetchImage retrieves an image. When the URL serves an HTML page, the page's
// og:image or first <img> is followed once.
func (f *Fetcher) FetchImage(ctx context.Context, rawURL string) (*Image, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	ct, body, err := f.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(ct, "image/") {
		return &Image{URL: u.String(), ContentType: ct, Data: body}, nil
	}
	if ct != "text/html" {
		return nil, fmt.Errorf("%w: %s serves %q", ErrNotImage, u, ct)
	}

	src := findImageSource(body)
	if src == "" {
		return nil, fmt.Errorf("%w: no image on page %s", ErrNotImage, u)
	}
	ref, err := u.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("invalid image reference %q: %w", src, err)
	}
	if _, err := parseURL(ref.String()); err != nil {
		return nil, err
	}

	ct, body, err = f.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: %s serves %q", ErrNotImage, ref, ct)
	}
	return &Image{URL: ref.String(), ContentType: ct, Data: body}, nil
}

// FetchImage downloads with a default Fetcher.
func FetchImage(ctx context.Context, rawURL string) (*Image, error) {
	return New(nil).FetchImage(ctx, rawURL)
}

// IsURL checks if a string looks like a URL
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://")
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}
	return u, nil
}

func (f *Fetcher) get(ctx context.Context, u *url.URL) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*, text/html;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if resp.ContentLength > MaxImageSize {
		return "", nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxImageSize {
		return "", nil, ErrTooLarge
	}

	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		ct = http.DetectContentType(body)
		ct, _, _ = mime.ParseMediaType(ct)
	}
	return ct, body, nil
}

// findImageSource returns the og:image content, falling back to the first
// <img src>.
func findImageSource(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}

	var ogImage, firstImg string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if ogImage != "" {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				if attr(n, "property") == "og:image" {
					ogImage = attr(n, "content")
				}
			case "img":
				if firstImg == "" {
					firstImg = attr(n, "src")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if ogImage != "" {
		return ogImage
	}
	return firstImg
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
