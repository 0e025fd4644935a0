// Package arcgis is the authenticated client for ArcGIS REST providers:
// per-provider token management, one method per upstream capability, typed
// failures, and bounded retry of transient errors.
package arcgis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sethvargo/go-retry"

	"github.com/JaimeStill/canopy/pkg/spatial"
)

// Gateway exposes one provider's REST capabilities.
type Gateway interface {
	Provider() *ProviderConfig
	GenerateFeatures(ctx context.Context, req GenerateRequest) (*FeatureCollection, error)
	Project(ctx context.Context, req ProjectRequest) ([]spatial.Geometry, error)
	Intersect(ctx context.Context, req IntersectRequest) ([]Feature, error)
	Union(ctx context.Context, req UnionRequest) (*spatial.Geometry, error)
	SubmitExport(ctx context.Context, req ExportRequest) (*JobInfo, error)
	PollJobStatus(ctx context.Context, jobID string) (*JobInfo, error)
	JobResult(ctx context.Context, jobID, param string) (string, error)
	Download(ctx context.Context, rawURL string) ([]byte, string, error)
	QueryFeatures(ctx context.Context, q FeatureQuery) ([]Feature, error)
	PushFeatures(ctx context.Context, req PushRequest) (*EditResult, error)
}

type gateway struct {
	provider *ProviderConfig
	tokens   *TokenManager
	client   *http.Client
	retry    RetryConfig
	logger   *slog.Logger
}

// New creates a Gateway for provider. Token-protected endpoints obtain
// bearer tokens from tokens.
func New(provider *ProviderConfig, retryCfg RetryConfig, tokens *TokenManager, client *http.Client, logger *slog.Logger) Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &gateway{
		provider: provider,
		tokens:   tokens,
		client:   client,
		retry:    retryCfg,
		logger:   logger.With("system", "gateway", "provider", provider.Key),
	}
}

func (g *gateway) Provider() *ProviderConfig {
	return g.provider
}

func (g *gateway) GenerateFeatures(ctx context.Context, req GenerateRequest) (*FeatureCollection, error) {
	if len(req.Data) == 0 {
		return nil, Validation("generate", ErrEmptyPayload, "no file content")
	}

	pp := publishParameters{
		Name:                       req.Filename,
		Generalize:                 req.Generalize,
		MaxAllowableOffset:         req.MaxAllowableOffset,
		ReducePrecision:            req.ReducePrecision,
		NumberOfDigitsAfterDecimal: req.NumberOfDigitsAfterDecimal,
		EnforceInputFileSizeLimit:  req.EnforceInputFileSizeLimit,
		EnforceOutputJSONSizeLimit: req.EnforceInputFileSizeLimit,
		SourceCountry:              g.provider.CountryCode,
	}
	if !req.TargetSR.IsZero() {
		sr := req.TargetSR
		pp.TargetSR = &sr
	}
	ppJSON, err := json.Marshal(pp)
	if err != nil {
		return nil, fmt.Errorf("encode publish parameters: %w", err)
	}

	ep := g.provider.Endpoint(CapGenerate)
	c := call{
		op:  "generate",
		url: ep.URL,
		params: url.Values{
			"filetype":          {req.FileType},
			"publishParameters": {string(ppJSON)},
		},
		file:       &filePart{field: "file", name: req.Filename, data: req.Data},
		capability: CapGenerate,
		token:      g.provider.RequiresToken(CapGenerate),
	}

	var resp generateResponse
	if err := g.invokeJSON(ctx, c, &resp); err != nil {
		return nil, err
	}
	return &resp.FeatureCollection, nil
}

func (g *gateway) Project(ctx context.Context, req ProjectRequest) ([]spatial.Geometry, error) {
	if req.InSR.IsZero() || req.OutSR.IsZero() {
		return nil, Validation("project", ErrMissingSpatialReference, "in and out spatial references required")
	}
	if len(req.Geometries) == 0 {
		return nil, nil
	}

	out := make([]spatial.Geometry, 0, len(req.Geometries))
	for _, run := range runsByType(req.Geometries) {
		batch, esriType, err := encodeBatch(run)
		if err != nil {
			return nil, err
		}

		ep := g.provider.Endpoint(CapGeometry)
		c := call{
			op:  "project",
			url: joinURL(ep.URL, "project"),
			params: url.Values{
				"geometries": {batch},
				"inSR":       {strconv.Itoa(req.InSR.Code())},
				"outSR":      {strconv.Itoa(req.OutSR.Code())},
			},
			capability: CapGeometry,
			token:      g.provider.RequiresToken(CapGeometry),
		}

		var resp geometriesResponse
		if err := g.invokeJSON(ctx, c, &resp); err != nil {
			return nil, err
		}
		if len(resp.Geometries) != len(run) {
			return nil, Provider("project", fmt.Sprintf("expected %d geometries, got %d", len(run), len(resp.Geometries)), nil)
		}

		for i, raw := range resp.Geometries {
			pg, err := spatial.ParseEsriTyped(raw, esriType, req.OutSR)
			if err != nil {
				return nil, Provider("project", "malformed geometry", err)
			}
			pg.Attributes = run[i].Attributes
			out = append(out, pg)
		}
	}
	return out, nil
}

func (g *gateway) Union(ctx context.Context, req UnionRequest) (*spatial.Geometry, error) {
	if req.SR.IsZero() {
		return nil, Validation("union", ErrMissingSpatialReference, "spatial reference required")
	}
	if len(req.Geometries) == 0 {
		return nil, Validation("union", ErrEmptyPayload, "no geometries")
	}
	if len(req.Geometries) == 1 {
		only := req.Geometries[0]
		return &only, nil
	}

	batch, _, err := encodeBatch(req.Geometries)
	if err != nil {
		return nil, err
	}

	ep := g.provider.Endpoint(CapGeometry)
	c := call{
		op:  "union",
		url: joinURL(ep.URL, "union"),
		params: url.Values{
			"geometries": {batch},
			"sr":         {strconv.Itoa(req.SR.Code())},
		},
		capability: CapGeometry,
		token:      g.provider.RequiresToken(CapGeometry),
	}

	var resp unionResponse
	if err := g.invokeJSON(ctx, c, &resp); err != nil {
		return nil, err
	}
	u, err := spatial.ParseEsriTyped(resp.Geometry, resp.GeometryType, req.SR)
	if err != nil {
		return nil, Provider("union", "malformed geometry", err)
	}
	return &u, nil
}

func (g *gateway) Intersect(ctx context.Context, req IntersectRequest) ([]Feature, error) {
	if req.Geometry.SpatialReference.IsZero() {
		return nil, Validation("intersect", ErrMissingSpatialReference, "geometry has no spatial reference")
	}
	geom, err := req.Geometry.MarshalEsri(false)
	if err != nil {
		return nil, Validation("intersect", err, "encode geometry")
	}

	outFields := "*"
	if len(req.Layer.Fields) > 0 {
		outFields = strings.Join(req.Layer.Fields, ",")
	}

	c := call{
		op:  "intersect",
		url: joinURL(req.Layer.ServiceURI, "query"),
		params: url.Values{
			"geometry":       {string(geom)},
			"geometryType":   {req.Geometry.EsriGeometryType()},
			"inSR":           {strconv.Itoa(req.Geometry.SpatialReference.Code())},
			"spatialRel":     {"esriSpatialRelIntersects"},
			"outFields":      {outFields},
			"returnGeometry": {"false"},
		},
		token: req.Layer.RequiresToken && g.provider.Grant != GrantNone,
	}

	var resp queryResponse
	if err := g.invokeJSON(ctx, c, &resp); err != nil {
		return nil, err
	}
	return resp.Features, nil
}

func (g *gateway) SubmitExport(ctx context.Context, req ExportRequest) (*JobInfo, error) {
	if len(req.WebMap) == 0 {
		return nil, Validation("submit export", ErrEmptyPayload, "no web map")
	}

	ep := g.provider.Endpoint(CapExport)
	c := call{
		op:  "submit export",
		url: joinURL(ep.URL, "submitJob"),
		params: url.Values{
			"Web_Map_as_JSON": {string(req.WebMap)},
			"Format":          {req.Format},
			"Layout_Template": {req.LayoutTemplate},
		},
		capability: CapExport,
		token:      g.provider.RequiresToken(CapExport),
	}

	var job JobInfo
	if err := g.invokeJSON(ctx, c, &job); err != nil {
		return nil, err
	}
	if job.JobID == "" {
		return nil, Provider("submit export", "response has no job id", nil)
	}
	return &job, nil
}

func (g *gateway) PollJobStatus(ctx context.Context, jobID string) (*JobInfo, error) {
	ep := g.provider.Endpoint(CapExport)
	c := call{
		op:         "poll job",
		method:     http.MethodGet,
		url:        joinURL(ep.URL, "jobs", url.PathEscape(jobID)),
		params:     url.Values{},
		capability: CapExport,
		token:      g.provider.RequiresToken(CapExport),
	}

	var job JobInfo
	if err := g.invokeJSON(ctx, c, &job); err != nil {
		return nil, err
	}
	if job.JobID == "" {
		job.JobID = jobID
	}
	return &job, nil
}

func (g *gateway) JobResult(ctx context.Context, jobID, param string) (string, error) {
	ep := g.provider.Endpoint(CapExport)
	c := call{
		op:         "job result",
		method:     http.MethodGet,
		url:        joinURL(ep.URL, "jobs", url.PathEscape(jobID), "results", url.PathEscape(param)),
		params:     url.Values{},
		capability: CapExport,
		token:      g.provider.RequiresToken(CapExport),
	}

	var resp jobResultResponse
	if err := g.invokeJSON(ctx, c, &resp); err != nil {
		return "", err
	}
	if resp.Value.URL == "" {
		return "", Provider("job result", "result has no url", nil)
	}
	return resp.Value.URL, nil
}

func (g *gateway) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	c := call{
		op:         "download",
		method:     http.MethodGet,
		url:        rawURL,
		raw:        true,
		capability: CapExport,
		token:      g.provider.RequiresToken(CapExport),
	}
	return g.invoke(ctx, c)
}

func (g *gateway) QueryFeatures(ctx context.Context, q FeatureQuery) ([]Feature, error) {
	ep := g.provider.Endpoint(CapFeatures)
	if ep.URL == "" {
		return nil, Validation("query features", ErrUnsupportedType, "provider %s has no features endpoint", g.provider.Key)
	}

	where := q.Where
	if where == "" {
		where = "1=1"
	}
	outFields := "*"
	if len(q.OutFields) > 0 {
		outFields = strings.Join(q.OutFields, ",")
	}

	c := call{
		op:  "query features",
		url: joinURL(ep.URL, "query"),
		params: url.Values{
			"where":          {where},
			"outFields":      {outFields},
			"returnGeometry": {strconv.FormatBool(q.ReturnGeometry)},
		},
		capability: CapFeatures,
		token:      g.provider.RequiresToken(CapFeatures),
	}

	var resp queryResponse
	if err := g.invokeJSON(ctx, c, &resp); err != nil {
		return nil, err
	}
	return resp.Features, nil
}

func (g *gateway) PushFeatures(ctx context.Context, req PushRequest) (*EditResult, error) {
	ep := g.provider.Endpoint(CapFeatures)
	if ep.URL == "" {
		return nil, Validation("apply edits", ErrUnsupportedType, "provider %s has no features endpoint", g.provider.Key)
	}
	if len(req.Adds) == 0 && len(req.Updates) == 0 {
		return &EditResult{}, nil
	}

	params := url.Values{"rollbackOnFailure": {"false"}}
	if len(req.Adds) > 0 {
		b, err := json.Marshal(req.Adds)
		if err != nil {
			return nil, fmt.Errorf("encode adds: %w", err)
		}
		params.Set("adds", string(b))
	}
	if len(req.Updates) > 0 {
		b, err := json.Marshal(req.Updates)
		if err != nil {
			return nil, fmt.Errorf("encode updates: %w", err)
		}
		params.Set("updates", string(b))
	}

	c := call{
		op:         "apply edits",
		url:        joinURL(ep.URL, "applyEdits"),
		params:     params,
		capability: CapFeatures,
		token:      g.provider.RequiresToken(CapFeatures),
	}

	var result EditResult
	if err := g.invokeJSON(ctx, c, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call describes one REST request. Bodies are rebuilt for every attempt.
type call struct {
	op         string
	method     string
	url        string
	params     url.Values
	file       *filePart
	capability Capability
	token      bool
	raw        bool
}

type filePart struct {
	field string
	name  string
	data  []byte
}

func (g *gateway) invokeJSON(ctx context.Context, c call, out any) error {
	body, _, err := g.invoke(ctx, c)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Provider(c.op, "malformed response body", err)
	}
	return nil
}

// invoke sends c, retrying transient failures with capped exponential
// backoff.
func (g *gateway) invoke(ctx context.Context, c call) ([]byte, string, error) {
	var (
		body        []byte
		contentType string
	)
	err := retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
		b, ct, err := g.authorized(ctx, c)
		if err != nil {
			if IsRetryable(err) {
				g.logger.Warn("transient failure", "op", c.op, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		body, contentType = b, ct
		return nil
	})
	return body, contentType, err
}

// authorized sends c with a bearer token when required. A rejected token is
// invalidated and the call is repeated once with a fresh token.
func (g *gateway) authorized(ctx context.Context, c call) ([]byte, string, error) {
	if !c.token {
		apiKey := ""
		if !g.endpointPublic(c) {
			apiKey = g.provider.APIKey
		}
		return g.send(ctx, c, "", apiKey)
	}

	key := g.provider.Key
	for attempt := 0; ; attempt++ {
		tok, err := g.tokens.Token(ctx, key)
		if err != nil {
			return nil, "", err
		}

		body, ct, err := g.send(ctx, c, tok, "")
		if !errors.Is(err, ErrAuth) {
			return body, ct, err
		}

		g.tokens.Invalidate(key)
		if attempt > 0 {
			return nil, "", err
		}
		g.logger.Info("token rejected, retrying with fresh token", "op", c.op)
	}
}

func (g *gateway) endpointPublic(c call) bool {
	return g.provider.Endpoint(c.capability).IsPublic()
}

func (g *gateway) send(ctx context.Context, c call, token, apiKey string) ([]byte, string, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, g.provider.TimeoutDuration())
	defer cancel()

	req, err := c.request(ctx, token, apiKey)
	if err != nil {
		return nil, "", fmt.Errorf("%s: build request: %w", c.op, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if parent.Err() != nil {
			return nil, "", parent.Err()
		}
		return nil, "", Transient(c.op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if parent.Err() != nil {
			return nil, "", parent.Err()
		}
		return nil, "", Transient(c.op, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", &Error{Kind: ErrAuth, Op: c.op, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, "", &Error{Kind: ErrTransient, Op: c.op, Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		e := &Error{Kind: ErrProvider, Op: c.op, Status: resp.StatusCode}
		if re := parseRestError(body); re != nil {
			e.Code, e.Message = re.Code, re.message()
		}
		return nil, "", e
	}

	if !c.raw {
		if re := parseRestError(body); re != nil {
			return nil, "", re.classify(c.op, resp.StatusCode)
		}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c call) request(ctx context.Context, token, apiKey string) (*http.Request, error) {
	params := url.Values{}
	for k, v := range c.params {
		params[k] = v
	}
	if !c.raw {
		params.Set("f", "json")
	}
	if apiKey != "" {
		params.Set("token", apiKey)
	}

	var (
		req *http.Request
		err error
	)
	switch {
	case c.method == http.MethodGet:
		u, perr := url.Parse(c.url)
		if perr != nil {
			return nil, perr
		}
		q := u.Query()
		for k, v := range params {
			q[k] = v
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	case c.file != nil:
		body, ct, merr := c.multipart(params)
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
		if err == nil {
			req.Header.Set("Content-Type", ct)
		}
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c call) multipart(params url.Values) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range params {
		for _, v := range vs {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	part, err := w.CreateFormFile(c.file.field, c.file.name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(c.file.data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (g *gateway) backoff() retry.Backoff {
	b := retry.NewExponential(g.retry.BaseDelayDuration())
	b = retry.WithJitterPercent(uint64(g.retry.JitterPercent), b)
	b = retry.WithCappedDuration(g.retry.MaxDelayDuration(), b)
	return retry.WithMaxRetries(uint64(g.retry.MaxAttempts-1), b)
}

func parseRestError(body []byte) *restError {
	var env struct {
		Error *restError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil
	}
	if env.Error.Code == 0 && env.Error.Message == "" {
		return nil
	}
	return env.Error
}

// runsByType splits geometries into consecutive runs of one Esri geometry
// type, since geometry service batches must be homogeneous.
func runsByType(geoms []spatial.Geometry) [][]spatial.Geometry {
	var runs [][]spatial.Geometry
	start := 0
	for i := 1; i <= len(geoms); i++ {
		if i == len(geoms) || geoms[i].EsriGeometryType() != geoms[start].EsriGeometryType() {
			runs = append(runs, geoms[start:i])
			start = i
		}
	}
	return runs
}

func encodeBatch(geoms []spatial.Geometry) (string, string, error) {
	batch := geometryBatch{GeometryType: geoms[0].EsriGeometryType()}
	for _, g := range geoms {
		raw, err := g.MarshalEsri(false)
		if err != nil {
			return "", "", Validation("encode geometry", err, "geometry type %s", g.Type)
		}
		batch.Geometries = append(batch.Geometries, raw)
	}
	b, err := json.Marshal(batch)
	if err != nil {
		return "", "", fmt.Errorf("encode geometries: %w", err)
	}
	return string(b), batch.GeometryType, nil
}

func joinURL(base string, elem ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(elem, "/")
}
