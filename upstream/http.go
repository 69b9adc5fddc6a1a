package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultHTTPTimeout bounds a single request when NewHTTPFetcher builds the client.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPFetcher reads objects from an HTTP origin as
// GET <BaseURL>/<contentID>?v=<rotation> with a Range header.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
	// Header is added to every request (auth tokens, user agent).
	Header http.Header
}

// NewHTTPFetcher returns a fetcher for baseURL. A nil client gets a default
// client with DefaultHTTPTimeout.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPFetcher{BaseURL: baseURL, Client: client}
}

// URL returns the request URL for key.
func (f *HTTPFetcher) URL(key string) (string, error) {
	contentID, rotation := SplitKey(key)
	if contentID == "" {
		return "", ErrInvalidKey
	}
	base, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", err
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", base.Scheme)
	}
	u := base.JoinPath(contentID)
	if rotation != "" {
		q := u.Query()
		q.Set("v", rotation)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, key string, r ByteRange) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, NewPermanent(key, err)
	}
	target, err := f.URL(key)
	if err != nil {
		return nil, NewPermanent(key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, NewPermanent(key, err)
	}
	for k, vs := range f.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if h := r.Header(); h != "" {
		req.Header.Set("Range", h)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, Classify(key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		// Offset at or past the end of the object.
		_, _ = io.Copy(io.Discard, resp.Body)
		return []byte{}, nil
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		kind, _ := StatusKind(resp.StatusCode)
		statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			statusErr = fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
		}
		return nil, &NetworkError{Kind: kind, Key: key, Err: statusErr}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, NewTransient(key, err)
	}

	// Origins that ignore Range answer 200 with the whole object.
	if resp.StatusCode == http.StatusOK && !r.Full() {
		return r.Slice(body), nil
	}
	return body, nil
}
