package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/youruser/avatarframe/internal/config"
	apperr "github.com/youruser/avatarframe/internal/errors"
	imagepkg "github.com/youruser/avatarframe/internal/image"
	"github.com/youruser/avatarframe/internal/logging"
	"github.com/youruser/avatarframe/internal/render"
	"github.com/youruser/avatarframe/internal/templates"
	"github.com/youruser/avatarframe/internal/util"
)

func newRenderCmd(opts *options) *cobra.Command {
	var (
		specs  []string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "render --candidate WxH:path [--candidate WxH:path ...]",
		Short: "Render every template from local photo files",
		Long: `Render composes the given photo onto every template and writes one PNG
per template into --out. Pass candidates from smallest to largest; for each
template the first one covering its required size is used, else the last.`,
		Example: `  avatarframe render --candidate 160x160:me_small.jpg --candidate 640x640:me.jpg --out framed/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates := make([]imagepkg.Candidate, 0, len(specs))
			for _, s := range specs {
				c, err := parseCandidate(s)
				if err != nil {
					return err
				}
				candidates = append(candidates, c)
			}
			return runRender(cmd.Context(), opts, candidates, outDir)
		},
	}
	cmd.Flags().StringArrayVar(&specs, "candidate", nil, "source image as WxH:path (repeatable, smallest first)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "out", "output directory")
	return cmd
}

// parseCandidate reads "640x480:path/to/photo.jpg".
func parseCandidate(s string) (imagepkg.Candidate, error) {
	dims, path, ok := strings.Cut(s, ":")
	if !ok || path == "" {
		return imagepkg.Candidate{}, apperr.New(apperr.ErrCodeInvalidInput, "candidate %q: want WxH:path", s)
	}
	ws, hs, ok := strings.Cut(strings.ToLower(dims), "x")
	if !ok {
		return imagepkg.Candidate{}, apperr.New(apperr.ErrCodeInvalidInput, "candidate %q: want WxH:path", s)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return imagepkg.Candidate{}, apperr.New(apperr.ErrCodeInvalidInput, "candidate %q: invalid size %q", s, dims)
	}
	return imagepkg.Candidate{Width: w, Height: h, Ref: path}, nil
}

func runRender(ctx context.Context, opts *options, candidates []imagepkg.Candidate, outDir string) error {
	logger := logging.FromContext(ctx)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	catalog, err := templates.Load(cfg.TemplatesFile, cfg.TemplatesPrefix)
	if err != nil {
		return err
	}

	renderer := render.New(catalog, imagepkg.FileFetcher{},
		render.WithWorkers(cfg.Workers),
		render.WithTimeout(cfg.RequestTimeout.Duration))
	results, err := renderer.RenderAll(ctx, candidates)
	if err != nil {
		return err
	}

	for _, res := range results {
		b, err := imagepkg.EncodePNG(res.Image)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, fmt.Sprintf("%02d_%s.png", res.Index+1, res.Template))
		if err := util.WriteFileAtomic(path, b); err != nil {
			return apperr.Wrap(apperr.ErrCodeIO, err, "write %s", path)
		}
		logger.Info("wrote", "file", path, "source", res.Source.Ref, "outcome", res.Source.Outcome)
	}
	return nil
}
