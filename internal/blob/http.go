package blob

import (
	"context"
	"io"
	"net/http"
	"time"

	dErrors "datashare/pkg/domain-errors"
)

// URLSigner turns a plain blob URL into a short-lived signed URL when the
// upstream refuses anonymous access.
type URLSigner interface {
	SignURL(ctx context.Context, rawURL string) (string, error)
}

// HTTPFetcher resolves http(s) refs against an external storage provider.
// Fetch tries the plain URL first, then a signed variant if a signer is
// configured, for providers that deny anonymous raw delivery.
type HTTPFetcher struct {
	client *http.Client
	signer URLSigner

	// maxSize bounds the response body read.
	maxSize int64
}

// FetcherOption configures the HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithSigner enables the signed-URL fallback.
func WithSigner(signer URLSigner) FetcherOption {
	return func(f *HTTPFetcher) { f.signer = signer }
}

// WithMaxSize caps how many bytes Fetch will read.
func WithMaxSize(n int64) FetcherOption {
	return func(f *HTTPFetcher) { f.maxSize = n }
}

func NewHTTPFetcher(timeout time.Duration, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: 64 << 20, // 64 MiB
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Put is unsupported: the HTTP fetcher serves refs written by an external
// uploader, it does not accept new blobs.
func (f *HTTPFetcher) Put(context.Context, string, []byte, string) (string, error) {
	return "", dErrors.New(dErrors.CodeInvalidInput, "http blob store is read-only")
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) (*Object, error) {
	obj, err := f.fetchURL(ctx, ref)
	if err == nil {
		return obj, nil
	}
	if f.signer == nil || !dErrors.HasCode(err, dErrors.CodeForbidden) {
		return nil, err
	}

	signed, signErr := f.signer.SignURL(ctx, ref)
	if signErr != nil {
		return nil, dErrors.Wrap(signErr, dErrors.CodeUnavailable, "failed to sign storage URL")
	}
	return f.fetchURL(ctx, signed)
}

func (f *HTTPFetcher) fetchURL(ctx context.Context, rawURL string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid blob reference")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "storage provider unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, dErrors.New(dErrors.CodeForbidden, "file access blocked by storage policy")
	case resp.StatusCode == http.StatusNotFound:
		return nil, dErrors.New(dErrors.CodeNotFound, "file not found in storage")
	default:
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "storage provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read storage response")
	}
	if int64(len(body)) > f.maxSize {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "file exceeds %d byte limit", f.maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Object{Content: body, ContentType: contentType}, nil
}

var _ Store = (*HTTPFetcher)(nil)
var _ Store = (*MemoryStore)(nil)
