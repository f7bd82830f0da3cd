package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-dashboard/internal/aggregate"
	"github.com/kjstillabower/sensor-dashboard/internal/cache"
	"github.com/kjstillabower/sensor-dashboard/internal/dataset"
	"github.com/kjstillabower/sensor-dashboard/internal/models"
	"github.com/kjstillabower/sensor-dashboard/internal/observability"
	"github.com/kjstillabower/sensor-dashboard/internal/pipeline"
)

// ErrDatasetNotFound is returned when an upload id is unknown or expired, or
// the fallback file does not exist.
var ErrDatasetNotFound = errors.New("dataset not found")

// ErrInvalidDataset wraps every parse failure of a dataset file (missing
// column, unsupported format, malformed CSV).
var ErrInvalidDataset = errors.New("invalid dataset")

// ErrUploadTooLarge is returned when an upload exceeds the configured size.
var ErrUploadTooLarge = errors.New("upload too large")

// ErrEmptyUpload is returned for a zero-byte upload.
var ErrEmptyUpload = errors.New("upload is empty")

// Dataset sources.
const (
	SourceUpload   = "upload"
	SourceFallback = "fallback"
)

// Source identifies where a rendered dataset came from.
type Source struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Query is one dashboard interaction: which dataset, which days, which locations.
// Nil dates default to the dataset bounds.
type Query struct {
	DatasetID string
	Start     *time.Time
	End       *time.Time
	Selection pipeline.Selection
}

// Dashboard is the result of one full render pass.
type Dashboard struct {
	Source  Source
	Format  string
	Rows    int
	Dropped int
	HasData bool
	Bounds  pipeline.DateRange
	Range   pipeline.DateRange
	Cascade pipeline.CascadeResult
	Reports []aggregate.Report
}

// Report returns the report for v.
func (d Dashboard) Report(v models.Variable) (aggregate.Report, bool) {
	for _, r := range d.Reports {
		if r.Variable == v {
			return r, true
		}
	}
	return aggregate.Report{}, false
}

// DashboardService loads datasets, stores uploads, and runs the filter and
// aggregate pass. It holds no per-user state; every call re-reads its input.
type DashboardService struct {
	loader       *dataset.Loader
	store        cache.Cache
	fallbackPath string
	uploadTTL    time.Duration
	maxBytes     int64
}

// NewDashboardService creates a DashboardService. fallbackPath is read when a
// query names no upload. uploadTTL bounds how long uploads stay addressable.
// maxBytes of 0 disables the size check.
func NewDashboardService(loader *dataset.Loader, store cache.Cache, fallbackPath string, uploadTTL time.Duration, maxBytes int64) *DashboardService {
	return &DashboardService{
		loader:       loader,
		store:        store,
		fallbackPath: fallbackPath,
		uploadTTL:    uploadTTL,
		maxBytes:     maxBytes,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// Upload parses data once to reject unreadable files, then stores the raw
// bytes under a new id.
func (s *DashboardService) Upload(ctx context.Context, name string, data []byte) (models.Upload, error) {
	logger := loggerFromContext(ctx)
	if len(data) == 0 {
		observability.UploadsTotal.WithLabelValues("rejected").Inc()
		return models.Upload{}, ErrEmptyUpload
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		observability.UploadsTotal.WithLabelValues("rejected").Inc()
		return models.Upload{}, fmt.Errorf("%w: %d bytes, limit %d", ErrUploadTooLarge, len(data), s.maxBytes)
	}

	start := time.Now()
	res, err := s.loader.Load(name, bytes.NewReader(data))
	observability.RecordDatasetLoad(SourceUpload, err, res.Dropped, time.Since(start))
	if err != nil {
		observability.UploadsTotal.WithLabelValues("rejected").Inc()
		return models.Upload{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}

	up := models.Upload{
		ID:         uuid.NewString(),
		Name:       name,
		Data:       data,
		UploadedAt: time.Now().UTC(),
	}
	setStart := time.Now()
	if err := s.store.Set(ctx, up.ID, up, s.uploadTTL); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		observability.UploadsTotal.WithLabelValues("rejected").Inc()
		return models.Upload{}, fmt.Errorf("store upload %s: %w", name, err)
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	observability.UploadsTotal.WithLabelValues("stored").Inc()

	if logger != nil {
		logger.Info("dataset uploaded",
			zap.String("datasetId", up.ID),
			zap.String("name", name),
			zap.Int("bytes", len(data)),
			zap.String("format", res.Format),
			zap.Int("rows", len(res.Rows)),
			zap.Int("dropped", res.Dropped),
		)
	}
	return up, nil
}

// Load resolves a dataset id (empty for the fallback file) and parses it.
func (s *DashboardService) Load(ctx context.Context, id string) (Source, dataset.Result, error) {
	logger := loggerFromContext(ctx)
	if id == "" {
		src := Source{Kind: SourceFallback, Name: s.fallbackPath}
		start := time.Now()
		res, err := s.loader.LoadFile(s.fallbackPath)
		observability.RecordDatasetLoad(SourceFallback, err, res.Dropped, time.Since(start))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return src, dataset.Result{}, fmt.Errorf("%w: %v", ErrDatasetNotFound, err)
			}
			return src, dataset.Result{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
		}
		logDropped(logger, src, res)
		return src, res, nil
	}

	getStart := time.Now()
	up, ok, err := s.store.Get(ctx, id)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		return Source{}, dataset.Result{}, fmt.Errorf("lookup upload %s: %w", id, err)
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
	if !ok {
		observability.CacheHitsTotal.WithLabelValues("miss").Inc()
		return Source{}, dataset.Result{}, fmt.Errorf("%w: upload %s", ErrDatasetNotFound, id)
	}
	observability.CacheHitsTotal.WithLabelValues("hit").Inc()

	src := Source{Kind: SourceUpload, ID: up.ID, Name: up.Name}
	start := time.Now()
	res, err := s.loader.Load(up.Name, bytes.NewReader(up.Data))
	observability.RecordDatasetLoad(SourceUpload, err, res.Dropped, time.Since(start))
	if err != nil {
		return src, dataset.Result{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	logDropped(logger, src, res)
	return src, res, nil
}

// Render runs the full pass for q: load, derive bounds, clamp the picked
// range, filter by days, cascade the location filters, and aggregate every
// variable over the final table.
func (s *DashboardService) Render(ctx context.Context, q Query) (Dashboard, error) {
	start := time.Now()
	logger := loggerFromContext(ctx)

	src, res, err := s.Load(ctx, q.DatasetID)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		Source:  src,
		Format:  res.Format,
		Rows:    len(res.Rows),
		Dropped: res.Dropped,
	}
	table := pipeline.NewTable(res.Rows)
	bounds, ok := table.Bounds()
	d.HasData = ok
	if ok {
		d.Bounds = bounds
		d.Range = PickRange(bounds, q.Start, q.End)
		table = pipeline.Apply(table, pipeline.ByDateRange(d.Range))
	}

	d.Cascade = pipeline.Cascade(table, q.Selection)
	filtered := d.Cascade.Filtered
	observability.FilteredRows.Observe(float64(filtered.Len()))

	d.Reports = make([]aggregate.Report, 0, len(models.Variables))
	for _, v := range models.Variables {
		d.Reports = append(d.Reports, aggregate.Build(filtered, v))
	}

	if logger != nil {
		logger.Debug("dashboard rendered",
			zap.String("source", src.Kind),
			zap.String("range", d.Range.String()),
			zap.Int("rows", d.Rows),
			zap.Int("filtered", filtered.Len()),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return d, nil
}

// PickRange defaults missing picks to bounds and clamps both ends into it.
func PickRange(bounds pipeline.DateRange, start, end *time.Time) pipeline.DateRange {
	r := bounds
	if start != nil {
		r.Start = *start
	}
	if end != nil {
		r.End = *end
	}
	return r.Clamp(bounds)
}

func logDropped(logger *zap.Logger, src Source, res dataset.Result) {
	if logger == nil || res.Dropped == 0 {
		return
	}
	logger.Info("rows dropped for invalid date",
		zap.String("source", src.Kind),
		zap.String("name", src.Name),
		zap.Int("dropped", res.Dropped),
		zap.Int("kept", len(res.Rows)),
	)
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
