package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"
)

// DownloadResult describes one Download call.
type DownloadResult struct {
	Path string
	// Written is the number of bytes transferred by this call.
	Written int64
	// Size is the file size on disk afterwards.
	Size    int64
	Resumed bool
	// Skipped is true when the local file already had the remote size.
	Skipped bool
}

// Download fetches url into dest. A partial dest is resumed with a Range
// request; a dest at least as large as the remote Content-Length is left
// alone.
func (c *Client) Download(ctx context.Context, url, dest string) (DownloadResult, error) {
	res := DownloadResult{Path: dest}

	remote := int64(-1)
	if resp, err := c.Head(ctx, url); err == nil {
		_ = resp.Body.Close()
		if resp.StatusCode < 300 && resp.ContentLength > 0 {
			remote = resp.ContentLength
		}
	} else if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var have int64
	if st, err := os.Stat(dest); err == nil {
		have = st.Size()
	}
	if remote > 0 && have >= remote {
		res.Skipped, res.Size = true, have
		return res, nil
	}

	hdr := http.Header{}
	if have > 0 {
		hdr.Set("Range", fmt.Sprintf("bytes=%d-", have))
	}
	resp, err := c.Get(ctx, url, hdr)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		res.Resumed = true
	case http.StatusOK:
		flags |= os.O_TRUNC
		have = 0
	case http.StatusRequestedRangeNotSatisfiable:
		res.Skipped, res.Size = true, have
		return res, nil
	default:
		return res, fmt.Errorf("httpds: GET %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return res, fmt.Errorf("httpds: create dir: %w", err)
	}
	f, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return res, fmt.Errorf("httpds: open %s: %w", dest, err)
	}
	var body io.Reader = resp.Body
	if c.limiter != nil {
		body = &limitedReader{ctx: ctx, r: resp.Body, lim: c.limiter}
	}
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	res.Written, res.Size = n, have+n
	if copyErr != nil {
		return res, fmt.Errorf("httpds: download %s: %w", url, copyErr)
	}
	if closeErr != nil {
		return res, fmt.Errorf("httpds: close %s: %w", dest, closeErr)
	}
	if remote > 0 && res.Size != remote {
		return res, fmt.Errorf("httpds: download %s: got %d bytes, want %d", url, res.Size, remote)
	}
	return res, nil
}

// limitedReader throttles reads through a shared token bucket.
type limitedReader struct {
	ctx context.Context
	r   io.Reader
	lim *rate.Limiter
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if b := l.lim.Burst(); len(p) > b {
		p = p[:b]
	}
	n, err := l.r.Read(p)
	if n > 0 {
		if werr := l.lim.WaitN(l.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
