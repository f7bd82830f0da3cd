package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-dashboard/internal/aggregate"
	"github.com/kjstillabower/sensor-dashboard/internal/dataset"
	"github.com/kjstillabower/sensor-dashboard/internal/export"
	"github.com/kjstillabower/sensor-dashboard/internal/observability"
	"github.com/kjstillabower/sensor-dashboard/internal/pipeline"
	"github.com/kjstillabower/sensor-dashboard/internal/service"
	"github.com/kjstillabower/sensor-dashboard/internal/traffic"
	"github.com/kjstillabower/sensor-dashboard/internal/validation"
	"github.com/kjstillabower/sensor-dashboard/internal/views"
)

// multipartOverhead is the allowance for form boundaries and headers on top of
// the configured upload size.
const multipartOverhead = 64 << 10

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	Thresholds traffic.Thresholds
	// CachePing, when set, is called to check upload store reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dashboardService *service.DashboardService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	maxUploadBytes   int64
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. maxUploadBytes bounds POST /upload bodies.
func NewHandler(
	dashboardService *service.DashboardService,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	maxUploadBytes int64,
) *Handler {
	return &Handler{
		dashboardService: dashboardService,
		healthConfig:     healthConfig,
		logger:           logger,
		maxUploadBytes:   maxUploadBytes,
	}
}

// parseQuery validates the dashboard query parameters shared by /, /download
// and /api/aggregates. The returned values are the normalized parameters,
// reused to build download links.
func parseQuery(r *http.Request) (service.Query, url.Values, error) {
	raw := r.URL.Query()
	norm := url.Values{}

	id, err := validation.ValidateDatasetID(raw.Get("dataset"))
	if err != nil {
		return service.Query{}, nil, err
	}
	if id != "" {
		norm.Set("dataset", id)
	}
	start, err := validation.ParseDate(raw.Get("start"))
	if err != nil {
		return service.Query{}, nil, err
	}
	if start != nil {
		norm.Set("start", start.Format(pipeline.DateLayout))
	}
	end, err := validation.ParseDate(raw.Get("end"))
	if err != nil {
		return service.Query{}, nil, err
	}
	if end != nil {
		norm.Set("end", end.Format(pipeline.DateLayout))
	}
	sel, err := validation.ValidateSelection(raw)
	if err != nil {
		return service.Query{}, nil, err
	}
	for level, values := range sel {
		norm[level.Key()] = values
	}
	return service.Query{DatasetID: id, Start: start, End: end, Selection: sel}, norm, nil
}

// GetDashboard handles GET /.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	q, norm, err := parseQuery(r)
	if err != nil {
		writeErrorPage(w, r, err)
		return
	}
	d, err := h.dashboardService.Render(r.Context(), q)
	if err != nil {
		recordOutcome(err)
		writeErrorPage(w, r, err)
		return
	}
	data, err := views.BuildDashboard(d, norm)
	if err != nil {
		recordOutcome(err)
		writeErrorPage(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, data); err != nil {
		recordOutcome(err)
		writeErrorPage(w, r, err)
		return
	}
	traffic.RecordSuccess()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// PostUpload handles POST /upload: multipart field "file", answered with a
// redirect to the dashboard for the new dataset.
func (h *Handler) PostUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: %v", service.ErrUploadTooLarge, err)
		} else {
			err = fmt.Errorf("%w: multipart field \"file\" is required", errBadForm)
		}
		writeErrorPage(w, r, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: %v", service.ErrUploadTooLarge, err)
		}
		writeErrorPage(w, r, err)
		return
	}

	up, err := h.dashboardService.Upload(r.Context(), header.Filename, data)
	if err != nil {
		recordOutcome(err)
		writeErrorPage(w, r, err)
		return
	}
	traffic.RecordSuccess()
	http.Redirect(w, r, "/?dataset="+url.QueryEscape(up.ID), http.StatusSeeOther)
}

// GetDownload handles GET /download/{variable}/{table}.
func (h *Handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, err := validation.ValidateVariable(vars["variable"])
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}
	table, err := validation.ValidateTable(vars["table"])
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}
	q, _, err := parseQuery(r)
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}

	d, err := h.dashboardService.Render(r.Context(), q)
	if err != nil {
		recordOutcome(err)
		writeClassifiedError(w, r, err)
		return
	}
	report, _ := d.Report(v)
	name, err := export.FileName(v, table)
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, report, table); err != nil {
		recordOutcome(err)
		writeClassifiedError(w, r, err)
		return
	}

	observability.ExportsTotal.WithLabelValues(v.Key(), table).Inc()
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Info("table exported",
			zap.String("variable", v.Key()),
			zap.String("table", table),
			zap.String("file", name),
			zap.Int("bytes", buf.Len()),
		)
	}
	traffic.RecordSuccess()
	w.Header().Set("Content-Type", export.ContentType(table))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GetAggregates handles GET /api/aggregates.
func (h *Handler) GetAggregates(w http.ResponseWriter, r *http.Request) {
	q, _, err := parseQuery(r)
	if err != nil {
		writeClassifiedError(w, r, err)
		return
	}
	d, err := h.dashboardService.Render(r.Context(), q)
	if err != nil {
		recordOutcome(err)
		writeClassifiedError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, newAggregatesResponse(d))
}

type rangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type stageJSON struct {
	Level    string   `json:"level"`
	Options  []string `json:"options"`
	Selected []string `json:"selected"`
	In       int      `json:"in"`
	Out      int      `json:"out"`
}

type districtJSON struct {
	District string   `json:"district"`
	Mean     *float64 `json:"mean"`
}

type summaryJSON struct {
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	StdDev *float64 `json:"stdDev"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

type bucketJSON struct {
	Value *float64 `json:"value"`
	Total *float64 `json:"total"`
}

type monthJSON struct {
	Month string   `json:"month"`
	Total *float64 `json:"total"`
}

type reportJSON struct {
	Variable     string         `json:"variable"`
	Column       string         `json:"column"`
	Unit         string         `json:"unit"`
	Distribution []bucketJSON   `json:"distribution"`
	Frequency    []bucketJSON   `json:"frequency"`
	ByDistrict   []districtJSON `json:"byDistrict"`
	Monthly      []monthJSON    `json:"monthly"`
	Summary      summaryJSON    `json:"summary"`
}

type aggregatesResponse struct {
	Source   service.Source `json:"source"`
	Rows     int            `json:"rows"`
	Dropped  int            `json:"dropped"`
	Filtered int            `json:"filtered"`
	Bounds   *rangeJSON     `json:"bounds"`
	Range    *rangeJSON     `json:"range"`
	Stages   []stageJSON    `json:"stages"`
	Reports  []reportJSON   `json:"reports"`
}

func newAggregatesResponse(d service.Dashboard) aggregatesResponse {
	resp := aggregatesResponse{
		Source:   d.Source,
		Rows:     d.Rows,
		Dropped:  d.Dropped,
		Filtered: d.Cascade.Filtered.Len(),
		Stages:   []stageJSON{},
		Reports:  []reportJSON{},
	}
	if d.HasData {
		resp.Bounds = &rangeJSON{Start: d.Bounds.Start.Format(pipeline.DateLayout), End: d.Bounds.End.Format(pipeline.DateLayout)}
		resp.Range = &rangeJSON{Start: d.Range.Start.Format(pipeline.DateLayout), End: d.Range.End.Format(pipeline.DateLayout)}
	}
	for _, st := range d.Cascade.Stages {
		resp.Stages = append(resp.Stages, stageJSON{
			Level:    st.Level.Key(),
			Options:  nonNil(st.Options),
			Selected: nonNil(st.Selected),
			In:       st.In,
			Out:      st.Out,
		})
	}
	for _, rep := range d.Reports {
		rj := reportJSON{
			Variable:     rep.Variable.Key(),
			Column:       rep.Variable.Column(),
			Unit:         rep.Variable.Unit(),
			Distribution: buckets(rep.Distribution),
			Frequency:    buckets(rep.Frequency),
			ByDistrict:   []districtJSON{},
			Monthly:      []monthJSON{},
			Summary: summaryJSON{
				Count:  rep.Summary.Count,
				Mean:   nullable(rep.Summary.Mean),
				StdDev: nullable(rep.Summary.StdDev),
				Min:    nullable(rep.Summary.Min),
				Max:    nullable(rep.Summary.Max),
			},
		}
		for _, mt := range rep.Monthly {
			rj.Monthly = append(rj.Monthly, monthJSON{Month: mt.Month, Total: nullable(mt.Total)})
		}
		for _, dm := range rep.ByDistrict {
			rj.ByDistrict = append(rj.ByDistrict, districtJSON{District: dm.District, Mean: nullable(dm.Mean)})
		}
		resp.Reports = append(resp.Reports, rj)
	}
	return resp
}

// nullable maps NaN and infinities to JSON null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func buckets(b []aggregate.Bucket) []bucketJSON {
	out := make([]bucketJSON, 0, len(b))
	for _, bk := range b {
		out = append(out, bucketJSON{Value: nullable(bk.Value), Total: nullable(bk.Total)})
	}
	return out
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["uploadStore"] = "healthy"
		} else {
			checks["uploadStore"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus determines the current health status by evaluating
// conditions in priority order: shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	switch traffic.Classify(h.healthConfig.Thresholds) {
	case traffic.StateOverloaded:
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
	case traffic.StateDegraded:
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// errBadForm marks malformed upload forms.
var errBadForm = errors.New("invalid form")

// classifyError maps an error to an HTTP status and stable error code.
func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, validation.ErrDatasetIDInvalid),
		errors.Is(err, validation.ErrDateInvalid),
		errors.Is(err, validation.ErrVariableUnknown),
		errors.Is(err, validation.ErrTableUnknown),
		errors.Is(err, validation.ErrSelectionTooLarge),
		errors.Is(err, validation.ErrSelectionValueTooLong),
		errors.Is(err, validation.ErrSelectionInvalidChars),
		errors.Is(err, service.ErrEmptyUpload),
		errors.Is(err, errBadForm):
		return http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	case errors.Is(err, service.ErrDatasetNotFound):
		return http.StatusNotFound, "DATASET_NOT_FOUND", "Dataset not found; upload it again or check the default dataset path"
	case errors.Is(err, service.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "Uploaded file is too large"
	case errors.Is(err, service.ErrInvalidDataset),
		errors.Is(err, dataset.ErrMissingColumn),
		errors.Is(err, dataset.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "INVALID_DATASET", err.Error()
	}
	return http.StatusInternalServerError, "INTERNAL", "Unable to render the dashboard"
}

// recordOutcome feeds server-side failures into the degraded window.
// Client errors are not counted.
func recordOutcome(err error) {
	if status, _, _ := classifyError(err); status >= http.StatusInternalServerError {
		traffic.RecordError()
		return
	}
	traffic.RecordSuccess()
}

// writeJSON writes a JSON response with the specified HTTP status code.
// The value is encoded before the header is sent, so an encoding failure
// becomes a 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		buf.Reset()
		buf.WriteString(`{"error":{"code":"INTERNAL","message":"Unable to encode the response","requestId":""}}` + "\n")
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func correlationID(r *http.Request) string {
	if v, ok := r.Context().Value("correlation_id").(string); ok {
		return v
	}
	return ""
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r),
		},
	})
}

// writeClassifiedError writes the JSON error envelope for err and logs it at
// a level matching its status.
func writeClassifiedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classifyError(err)
	logRequestError(r, status, err)
	writeError(w, r, status, code, message)
}

// writeErrorPage renders the HTML error page for err. Falls back to the JSON
// envelope when the template cannot be rendered.
func writeErrorPage(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classifyError(err)
	logRequestError(r, status, err)

	var buf bytes.Buffer
	data := &views.ErrorData{Status: status, Code: code, Message: message, RequestID: correlationID(r)}
	if rerr := views.RenderError(&buf, data); rerr != nil {
		writeError(w, r, status, code, message)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func logRequestError(r *http.Request, status int, err error) {
	logger, ok := r.Context().Value("logger").(*zap.Logger)
	if !ok || logger == nil {
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		return
	}
	logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
}
