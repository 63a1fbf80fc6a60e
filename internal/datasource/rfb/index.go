// Package rfb discovers, downloads and unpacks the monthly CNPJ releases
// published by the Receita Federal as a plain directory listing: one
// YYYY-MM/ folder per release, each holding the .zip archives.
package rfb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/danalec/CNPJ-Receita-Federal/internal/datasource/httpds"
)

var releaseDir = regexp.MustCompile(`^(\d{4}-\d{2})/?$`)

// Getter is the part of httpds.Client the index and fetcher need.
type Getter interface {
	Get(ctx context.Context, url string, headers http.Header) (*http.Response, error)
	Download(ctx context.Context, url, dest string) (httpds.DownloadResult, error)
}

// links returns every <a href> in an HTML document, in document order.
func links(r io.Reader) []string {
	var out []string
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					out = append(out, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}

func listing(ctx context.Context, c Getter, page string) ([]string, error) {
	resp, err := c.Get(ctx, page, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rfb: GET %s: status %d", page, resp.StatusCode)
	}
	return links(resp.Body), nil
}

// LatestRelease returns the newest YYYY-MM release listed under base.
func LatestRelease(ctx context.Context, c Getter, base string) (string, error) {
	hrefs, err := listing(ctx, c, base)
	if err != nil {
		return "", err
	}
	var releases []string
	for _, h := range hrefs {
		if m := releaseDir.FindStringSubmatch(h); m != nil {
			releases = append(releases, m[1])
		}
	}
	if len(releases) == 0 {
		return "", fmt.Errorf("rfb: no release folders listed at %s", base)
	}
	sort.Strings(releases)
	return releases[len(releases)-1], nil
}

// ReleaseURL joins base and release into the release folder URL.
func ReleaseURL(base, release string) string {
	return strings.TrimRight(base, "/") + "/" + release + "/"
}

// Archives returns the absolute URLs of the .zip files listed in a release
// folder, sorted.
func Archives(ctx context.Context, c Getter, releaseURL string) ([]string, error) {
	baseURL, err := url.Parse(releaseURL)
	if err != nil {
		return nil, fmt.Errorf("rfb: parse %s: %w", releaseURL, err)
	}
	hrefs, err := listing(ctx, c, releaseURL)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, h := range hrefs {
		if !strings.HasSuffix(strings.ToLower(h), ".zip") {
			continue
		}
		ref, err := url.Parse(h)
		if err != nil {
			continue
		}
		abs := baseURL.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	sort.Strings(out)
	return out, nil
}
