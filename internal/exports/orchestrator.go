package exports

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

type orchestrator struct {
	cfg      *Config
	gateways Gateways
	tokens   Tokens
	store    Store
	clock    clockwork.Clock
	logger   *slog.Logger
}

// New creates the export System. tokens and store may be nil, in which
// case token-protected layers are rendered without a token and Archive
// fails with ErrNoStorage.
func New(
	cfg *Config,
	gateways Gateways,
	tokens Tokens,
	store Store,
	clock clockwork.Clock,
	logger *slog.Logger,
) System {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &orchestrator{
		cfg:      cfg,
		gateways: gateways,
		tokens:   tokens,
		store:    store,
		clock:    clock,
		logger:   logger.With("system", "exports"),
	}
}

func (o *orchestrator) Handler() *Handler {
	return NewHandler(o, o.logger)
}

func (o *orchestrator) ExportMap(ctx context.Context, req Request) (*Job, error) {
	const op = "export map"

	if err := validateGeometries(op, req.Geometries); err != nil {
		return nil, err
	}

	format := req.Format
	if format == "" {
		format = o.cfg.Format
	}
	if _, ok := formatExtension(format); !ok {
		return nil, arcgis.Validation(op, arcgis.ErrUnsupportedType, "format %q", format)
	}

	template := req.Layout.Template
	if template == "" {
		template = o.cfg.LayoutTemplate
	}

	tokens, err := o.layerTokens(ctx, req.Layers)
	if err != nil {
		return nil, err
	}

	wm, err := buildWebMap(o.cfg, req, tokens)
	if err != nil {
		return nil, arcgis.Validation(op, err, "build web map")
	}
	doc, err := wm.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%s: encode web map: %w", op, err)
	}

	gw, err := o.gateways.Get(o.cfg.Provider)
	if err != nil {
		return nil, err
	}

	info, err := gw.SubmitExport(ctx, arcgis.ExportRequest{
		WebMap:         doc,
		Format:         format,
		LayoutTemplate: template,
	})
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:          info.JobID,
		Ref:         uuid.New(),
		Format:      format,
		SubmittedAt: o.clock.Now(),
		Status:      StatusPending,
		RawStatus:   info.JobStatus,
		Messages:    info.Messages,
	}

	o.logger.Info("export submitted", "job", job.ID, "ref", job.Ref, "format", format)
	return job, nil
}

// Await polls job until it reaches a terminal state or maxWait elapses.
// A terminal job is returned unchanged without polling. A job only becomes
// Success once its result URL resolves; otherwise it stays Pending.
func (o *orchestrator) Await(ctx context.Context, job *Job, maxWait, pollInterval time.Duration) (*Job, error) {
	if job.Terminal() {
		return job, nil
	}
	if maxWait <= 0 {
		maxWait = o.cfg.MaxWaitDuration()
	}
	if pollInterval <= 0 {
		pollInterval = o.cfg.PollIntervalDuration()
	}

	gw, err := o.gateways.Get(o.cfg.Provider)
	if err != nil {
		return job, err
	}
	statuses := gw.Provider().JobStatus
	start := o.clock.Now()

	for {
		info, err := gw.PollJobStatus(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			return job, err
		}
		job.Polls++
		job.RawStatus = info.JobStatus
		if len(info.Messages) > 0 {
			job.Messages = info.Messages
		}

		outcome, ok := statuses.Classify(info.JobStatus)
		switch {
		case !ok:
			job.Status = StatusFailed
			job.Unrecognized = true
			o.logger.Error("unrecognized job status, add it to the provider job_status sets",
				"job", job.ID, "status", info.JobStatus, "provider", gw.Provider().Key)
			return job, nil
		case outcome == "failed":
			job.Status = StatusFailed
			o.logger.Warn("export failed", "job", job.ID, "status", info.JobStatus, "polls", job.Polls)
			return job, nil
		case outcome == "success":
			url, err := gw.JobResult(ctx, job.ID, o.cfg.ResultParam)
			if err != nil {
				return job, err
			}
			job.Status = StatusSuccess
			job.ResultURL = url
			o.logger.Info("export succeeded", "job", job.ID, "polls", job.Polls)
			return job, nil
		}

		if o.clock.Since(start) >= maxWait {
			job.Status = StatusFailed
			job.TimedOut = true
			o.logger.Warn("export timed out", "job", job.ID, "max_wait", maxWait, "polls", job.Polls)
			return job, nil
		}

		o.logger.Debug("export pending", "job", job.ID, "status", info.JobStatus, "polls", job.Polls)

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-o.clock.After(o.backoff(pollInterval)):
		}
	}
}

func (o *orchestrator) Archive(ctx context.Context, job *Job) (string, error) {
	if job.Status != StatusSuccess || job.ResultURL == "" {
		return "", fmt.Errorf("%w: job %s is %s", ErrNotReady, job.ID, job.Status)
	}
	if o.store == nil {
		return "", ErrNoStorage
	}

	gw, err := o.gateways.Get(o.cfg.Provider)
	if err != nil {
		return "", err
	}
	data, contentType, err := gw.Download(ctx, job.ResultURL)
	if err != nil {
		return "", err
	}

	ext, _ := formatExtension(job.Format)
	if ext == "pdf" {
		pages, err := api.PageCount(bytes.NewReader(data), nil)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
		if pages == 0 {
			return "", fmt.Errorf("%w: no pages", ErrInvalidOutput)
		}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key := fmt.Sprintf("exports/%s/map.%s", job.Ref, ext)
	if err := o.store.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("archive export: %w", err)
	}
	job.ArchiveKey = key

	o.logger.Info("export archived", "job", job.ID, "key", key, "bytes", len(data))
	return key, nil
}

func (o *orchestrator) Export(ctx context.Context, req Request, archive bool) (*Job, error) {
	job, err := o.ExportMap(ctx, req)
	if err != nil {
		return nil, err
	}

	job, err = o.Await(ctx, job, o.cfg.MaxWaitDuration(), o.cfg.PollIntervalDuration())
	if err != nil {
		return job, err
	}

	if archive && job.Status == StatusSuccess {
		if _, err := o.Archive(ctx, job); err != nil {
			return job, err
		}
	}
	return job, nil
}

// backoff returns the sleep before the next poll: the interval plus up to
// JitterFraction of it.
func (o *orchestrator) backoff(interval time.Duration) time.Duration {
	span := int64(float64(interval) * o.cfg.JitterFraction)
	if span <= 0 {
		return interval
	}
	return interval + time.Duration(rand.Int64N(span+1))
}

func (o *orchestrator) layerTokens(ctx context.Context, layers []arcgis.LayerDescriptor) (map[string]string, error) {
	tokens := make(map[string]string)
	if o.tokens == nil {
		return tokens, nil
	}
	for _, l := range layers {
		if !l.RequiresToken {
			continue
		}
		provider := l.Provider
		if provider == "" {
			provider = o.cfg.Provider
		}
		tok, err := o.tokens.Token(ctx, provider)
		if err != nil {
			return nil, err
		}
		tokens[l.Name] = tok
	}
	return tokens, nil
}

func validateGeometries(op string, geoms []spatial.Geometry) error {
	if len(geoms) == 0 {
		return arcgis.Validation(op, arcgis.ErrEmptyPayload, "no geometries")
	}
	sr := geoms[0].SpatialReference
	for i, g := range geoms {
		if g.SpatialReference.IsZero() {
			return arcgis.Validation(op, arcgis.ErrMissingSpatialReference, "geometry %d", i)
		}
		if !g.SpatialReference.Equal(sr) {
			return arcgis.Validation(op, arcgis.ErrMissingSpatialReference, "geometry %d is in %s, expected %s", i, g.SpatialReference, sr)
		}
		if err := g.Validate(); err != nil {
			return arcgis.Validation(op, err, "geometry %d", i)
		}
	}
	return nil
}
