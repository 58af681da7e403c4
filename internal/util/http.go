package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrTooLarge is returned when a body exceeds the caller's limit.
var ErrTooLarge = errors.New("body exceeds size limit")

// GetBytes fetches url with client and returns the body of a 200 response.
// Bodies longer than limit bytes are rejected with ErrTooLarge without
// being read in full.
func GetBytes(ctx context.Context, client *http.Client, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("GET %s: %w (%d > %d)", url, ErrTooLarge, resp.ContentLength, limit)
	}
	return ReadLimited(resp.Body, limit)
}

// ReadLimited reads r to EOF, failing with ErrTooLarge once more than limit
// bytes have been seen.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooLarge, limit)
	}
	return b, nil
}
