package imagepkg

import (
	"context"
	"errors"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperr "github.com/youruser/avatarframe/internal/errors"
	"github.com/youruser/avatarframe/internal/util"
)

// Fetcher resolves a candidate reference to a decoded image. Fetching is
// the only blocking step of a render.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (image.Image, error)
}

// HTTPFetcher downloads http(s) references. Bodies over MaxBytes
// (MaxSourceBytes when zero) are refused.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}, MaxBytes: MaxSourceBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) (image.Image, error) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return nil, apperr.New(apperr.ErrCodeInvalidInput, "source url must use http or https: %q", ref)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = MaxSourceBytes
	}
	body, err := util.GetBytes(ctx, client, ref, limit)
	if errors.Is(err, util.ErrTooLarge) {
		return nil, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "source image larger than %d bytes", limit)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeFetch, err, "download source image")
	}
	return DecodeBytes(body)
}

// FileFetcher reads references as file paths. With a non-empty Root,
// references are confined to that directory.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Fetch(_ context.Context, ref string) (image.Image, error) {
	path := ref
	if f.Root != "" {
		path = filepath.Join(f.Root, filepath.Clean("/"+ref))
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeFetch, err, "read source image %s", ref)
	}
	defer file.Close()
	b, err := util.ReadLimited(file, MaxSourceBytes)
	if errors.Is(err, util.ErrTooLarge) {
		return nil, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "source image %s larger than %d bytes", ref, MaxSourceBytes)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeFetch, err, "read source image %s", ref)
	}
	return DecodeBytes(b)
}

// StaticFetcher serves images that were decoded up front, such as an
// uploaded photo.
type StaticFetcher map[string]image.Image

func (f StaticFetcher) Fetch(_ context.Context, ref string) (image.Image, error) {
	img, ok := f[ref]
	if !ok {
		return nil, apperr.New(apperr.ErrCodeFetch, "unknown source image %q", ref)
	}
	return img, nil
}
