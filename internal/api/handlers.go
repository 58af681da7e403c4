package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	apperr "github.com/youruser/avatarframe/internal/errors"
	"github.com/youruser/avatarframe/internal/eventlog"
	imagepkg "github.com/youruser/avatarframe/internal/image"
	"github.com/youruser/avatarframe/internal/logging"
	"github.com/youruser/avatarframe/internal/render"
	"github.com/youruser/avatarframe/internal/stats"
	"github.com/youruser/avatarframe/internal/util"
)

const (
	uploadRef     = "upload"
	defaultQRSize = 400
)

// Handlers serves the HTTP API.
type Handlers struct {
	renderer   *render.Renderer
	events     *eventlog.Writer
	reporter   *stats.Reporter
	inviteLink string
	logger     *log.Logger
}

// NewHandlers wires the API to its collaborators.
func NewHandlers(renderer *render.Renderer, events *eventlog.Writer, reporter *stats.Reporter, inviteLink string, logger *log.Logger) *Handlers {
	return &Handlers{
		renderer:   renderer,
		events:     events,
		reporter:   reporter,
		inviteLink: inviteLink,
		logger:     logger,
	}
}

type candidateRequest struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

type composeRequest struct {
	Subject    string             `json:"subject"`
	Candidates []candidateRequest `json:"candidates"`
}

type composedImage struct {
	Template string `json:"template"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Outcome  string `json:"source"`
	PNG      string `json:"png"`
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "templates": h.renderer.Catalog().Len()})
}

// compose renders every template from a list of source URLs, ordered from
// smallest to largest.
func (h *Handlers) compose(c *gin.Context) {
	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "", apperr.Wrap(apperr.ErrCodeInvalidInput, err, "invalid compose request"))
		return
	}
	h.events.Record(req.Subject, "use_url_photo")

	candidates := make([]imagepkg.Candidate, 0, len(req.Candidates))
	for _, rc := range req.Candidates {
		candidates = append(candidates, imagepkg.Candidate{Width: rc.Width, Height: rc.Height, Ref: rc.URL})
	}
	h.respond(c, req.Subject, h.renderer, candidates)
}

// composeUpload renders every template from a single uploaded photo.
func (h *Handlers) composeUpload(c *gin.Context) {
	subject := c.PostForm("subject")
	h.events.Record(subject, "use_uploaded_photo")

	fh, err := c.FormFile("photo")
	if err != nil {
		h.fail(c, subject, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "missing photo upload"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, subject, apperr.Wrap(apperr.ErrCodeIO, err, "open upload"))
		return
	}
	defer f.Close()
	data, err := util.ReadLimited(f, imagepkg.MaxSourceBytes)
	if errors.Is(err, util.ErrTooLarge) {
		h.fail(c, subject, apperr.Wrap(apperr.ErrCodeInvalidInput, err, "upload larger than %d bytes", imagepkg.MaxSourceBytes))
		return
	}
	if err != nil {
		h.fail(c, subject, apperr.Wrap(apperr.ErrCodeIO, err, "read upload"))
		return
	}
	img, err := imagepkg.DecodeBytes(data)
	if err != nil {
		h.fail(c, subject, err)
		return
	}

	b := img.Bounds()
	candidates := []imagepkg.Candidate{{Width: b.Dx(), Height: b.Dy(), Ref: uploadRef}}
	renderer := h.renderer.WithFetcher(imagepkg.StaticFetcher{uploadRef: img})
	h.respond(c, subject, renderer, candidates)
}

func (h *Handlers) respond(c *gin.Context, subject string, renderer *render.Renderer, candidates []imagepkg.Candidate) {
	results, err := renderer.RenderAll(c.Request.Context(), candidates)
	if err != nil {
		h.fail(c, subject, err)
		return
	}

	out := make([]composedImage, 0, len(results))
	for _, res := range results {
		b, err := imagepkg.EncodePNG(res.Image)
		if err != nil {
			h.fail(c, subject, err)
			return
		}
		out = append(out, composedImage{
			Template: res.Template,
			Width:    res.Image.Bounds().Dx(),
			Height:   res.Image.Bounds().Dy(),
			Outcome:  res.Source.Outcome.String(),
			PNG:      base64.StdEncoding.EncodeToString(b),
		})
	}
	for _, res := range results {
		h.events.Record(subject, "send_photo "+res.Template)
	}
	c.JSON(http.StatusOK, gin.H{"images": out})
}

// stats returns the daily aggregate as JSON, or as a text table with
// ?format=text. ?order=calendar sorts days by date.
func (h *Handlers) stats(c *gin.Context) {
	h.events.Record(c.Query("subject"), "statistics")
	agg, err := h.reporter.Aggregate(c.Request.Context())
	if err != nil {
		h.fail(c, "", err)
		return
	}
	if c.Query("order") == "calendar" {
		agg = agg.Sorted()
	}
	if c.Query("format") == "text" {
		c.String(http.StatusOK, stats.RenderTable(agg))
		return
	}
	c.JSON(http.StatusOK, agg)
}

// statsChart refreshes the chart file and serves it.
func (h *Handlers) statsChart(c *gin.Context) {
	h.events.Record(c.Query("subject"), "statistics")
	if _, err := h.reporter.Report(c.Request.Context()); err != nil {
		h.fail(c, "", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.File(h.reporter.ChartPath())
}

// invite returns a QR code PNG of the configured invite link.
func (h *Handlers) invite(c *gin.Context) {
	if h.inviteLink == "" {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "no invite link configured"})
		return
	}
	size := defaultQRSize
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v >= 64 && v <= 2048 {
		size = v
	}
	b, err := imagepkg.GenerateQRPNG(h.inviteLink, size)
	if err != nil {
		h.fail(c, "", err)
		return
	}
	c.Data(http.StatusOK, "image/png", b)
}

// fail logs err with the subject and reports it as a single failure.
func (h *Handlers) fail(c *gin.Context, subject string, err error) {
	logger := logging.FromContext(c.Request.Context())
	if subject != "" {
		logger = logger.With("subject", subject)
	}
	logger.Error(apperr.UserMessage(err), "err", err)

	code := apperr.GetCode(err)
	if code == "" {
		code = apperr.ErrCodeInternal
	}
	c.AbortWithStatusJSON(statusFor(code), gin.H{"code": code, "error": apperr.UserMessage(err)})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.ErrCodeNoCandidate, apperr.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperr.ErrCodeDecode, apperr.ErrCodeResize:
		return http.StatusUnprocessableEntity
	case apperr.ErrCodeFetch:
		return http.StatusBadGateway
	case apperr.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
