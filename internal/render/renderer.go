// Package render drives source selection and composition across the whole
// template catalog for one request.
package render

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	apperr "github.com/youruser/avatarframe/internal/errors"
	imagepkg "github.com/youruser/avatarframe/internal/image"
	"github.com/youruser/avatarframe/internal/logging"
	"github.com/youruser/avatarframe/internal/templates"
)

// Result is one composed image, in catalog position Index.
type Result struct {
	Index    int
	Template string
	Source   imagepkg.Selection
	Image    *image.NRGBA
}

// Renderer renders a request against every template of a catalog.
// It is safe for concurrent use by independent requests, which share one
// pool of composition slots.
type Renderer struct {
	catalog *templates.Catalog
	fetcher imagepkg.Fetcher
	workers int
	timeout time.Duration
	slots   *semaphore.Weighted
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithWorkers bounds how many sources are fetched and composed at once,
// across all requests. Each in-flight composite holds a full-resolution
// raster.
func WithWorkers(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithTimeout sets a per-request deadline; zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(r *Renderer) { r.timeout = d }
}

// New returns a Renderer over catalog that obtains sources from fetcher.
func New(catalog *templates.Catalog, fetcher imagepkg.Fetcher, opts ...Option) *Renderer {
	r := &Renderer{catalog: catalog, fetcher: fetcher, workers: 1}
	for _, opt := range opts {
		opt(r)
	}
	r.slots = semaphore.NewWeighted(int64(r.workers))
	return r
}

// WithFetcher returns a copy of r that uses fetcher instead, sharing the
// catalog, its cached assets and the worker slots.
func (r *Renderer) WithFetcher(fetcher imagepkg.Fetcher) *Renderer {
	cp := *r
	cp.fetcher = fetcher
	return &cp
}

// Catalog returns the catalog r renders against.
func (r *Renderer) Catalog() *templates.Catalog {
	return r.catalog
}

// RenderAll selects a source and composes it for every template, returning
// results in catalog order. The first failure cancels the rest of the
// batch and is returned alone; no partial results are delivered. Running
// out of time, or being canceled, is a TIMEOUT error.
func (r *Renderer) RenderAll(ctx context.Context, candidates []imagepkg.Candidate) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, apperr.New(apperr.ErrCodeNoCandidate, "no source image candidates")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	logger := logging.FromContext(ctx)
	start := time.Now()

	sources := newSourceSet(r.fetcher)
	results := make([]Result, r.catalog.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := 0; i < r.catalog.Len(); i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.renderOne(gctx, sources, i, candidates)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		err = asTimeout(ctx, err)
		logger.Error("render failed", "err", err)
		return nil, err
	}
	logger.Debug("rendered batch", "templates", len(results), "elapsed", time.Since(start).Round(time.Millisecond))
	return results, nil
}

func (r *Renderer) renderOne(ctx context.Context, sources *sourceSet, i int, candidates []imagepkg.Candidate) (Result, error) {
	spec := r.catalog.Spec(i)
	sel, err := imagepkg.Select(candidates, spec.Size)
	if err != nil {
		return Result{}, err
	}
	logging.FromContext(ctx).Debug("selected source",
		"template", spec.Name, "ref", sel.Ref, "outcome", sel.Outcome,
		"have", image.Pt(sel.Width, sel.Height), "need", spec.Size)

	assets, err := r.catalog.Assets(i)
	if err != nil {
		return Result{}, err
	}

	if err := r.slots.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer r.slots.Release(1)

	src, err := sources.get(ctx, sel.Ref)
	if err != nil {
		return Result{}, err
	}
	out, err := imagepkg.Compose(assets.Template, assets.Mask, src, spec.Size, spec.Position)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.GetCode(err), err, "template %s", spec.Name)
	}
	return Result{Index: i, Template: spec.Name, Source: sel, Image: out}, nil
}

// asTimeout gives deadline and cancellation failures of the request context
// a TIMEOUT code; any other error is returned as is.
func asTimeout(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperr.Wrap(apperr.ErrCodeTimeout, err, "render deadline exceeded")
	case errors.Is(ctx.Err(), context.Canceled):
		return apperr.Wrap(apperr.ErrCodeTimeout, err, "render canceled")
	case apperr.GetCode(err) == "" && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		return apperr.Wrap(apperr.ErrCodeTimeout, err, "render interrupted")
	}
	return err
}

// sourceSet fetches each distinct reference once per request, even when
// several templates pick the same candidate concurrently.
type sourceSet struct {
	fetcher imagepkg.Fetcher
	mu      sync.Mutex
	entries map[string]*sourceEntry
}

type sourceEntry struct {
	once sync.Once
	img  image.Image
	err  error
}

func newSourceSet(f imagepkg.Fetcher) *sourceSet {
	return &sourceSet{fetcher: f, entries: make(map[string]*sourceEntry)}
}

func (s *sourceSet) get(ctx context.Context, ref string) (image.Image, error) {
	s.mu.Lock()
	e, ok := s.entries[ref]
	if !ok {
		e = &sourceEntry{}
		s.entries[ref] = e
	}
	s.mu.Unlock()

	e.once.Do(func() {
		e.img, e.err = s.fetcher.Fetch(ctx, ref)
	})
	return e.img, e.err
}
