package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"time"

	"llamaworker/internal/engine"
)

// Progress is called after every chunk written to the staged file.
// total is -1 when the source did not announce a length.
type Progress func(written, total int64)

// FetchOptions configures a Fetcher.
type FetchOptions struct {
	// Token is sent as a bearer token when set (e.g. HF_TOKEN).
	Token     string
	UserAgent string
	// Timeout bounds the whole transfer; 0 means none.
	Timeout time.Duration
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Fetcher streams a remote artifact into an engine filesystem.
type Fetcher struct {
	client    *http.Client
	token     string
	userAgent string
	bufSize   int
}

// NewFetcher builds a Fetcher that understands http, https and file URLs.
func NewFetcher(opts FetchOptions) *Fetcher {
	tr := opts.Transport
	if tr == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
		tr = t
	}
	return &Fetcher{
		client:    &http.Client{Transport: tr, Timeout: opts.Timeout},
		token:     opts.Token,
		userAgent: opts.UserAgent,
		bufSize:   32 * 1024,
	}
}

// WriteStream copies url into dst on fsys and returns the bytes written.
//
// The destination is created, with its parent directories, before any body
// data is read. Each read is written out before the next read starts. On
// failure the file is closed and the partial content is left in place.
func (f *Fetcher) WriteStream(ctx context.Context, fsys engine.FS, url, dst string, progress Progress) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &FetchError{URL: url, Err: err}
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, &FetchError{URL: url, Err: err}
	}
	if resp.Body == nil {
		return 0, &FetchError{URL: url, Err: errors.New("response has no body")}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &FetchError{URL: url, Status: resp.StatusCode}
	}

	if err := fsys.MkdirAll(path.Dir(dst)); err != nil {
		return 0, &FilesystemWriteError{Op: "mkdir", Path: path.Dir(dst), Err: err}
	}
	out, err := fsys.Create(dst)
	if err != nil {
		return 0, &FilesystemWriteError{Op: "open", Path: dst, Err: err}
	}

	buf := make([]byte, f.bufSize)
	var written int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				_ = out.Close()
				return written, &FilesystemWriteError{Op: "write", Path: dst, Err: werr}
			}
			written += int64(n)
			if progress != nil {
				progress(written, resp.ContentLength)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			_ = out.Close()
			return written, &FetchError{URL: url, Err: readErr}
		}
	}
	if err := out.Close(); err != nil {
		return written, &FilesystemWriteError{Op: "close", Path: dst, Err: err}
	}
	return written, nil
}
