package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonwraymond/stageflow/observe"
)

// ObjectWriter is the slice of the object store client the archiver uses.
// *minio.Client satisfies it.
type ObjectWriter interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ArchiveConfig configures the run archiver and its object store client.
type ArchiveConfig struct {
	// Endpoint is the object store host:port, without scheme.
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// Bucket receives the run bundles. It must already exist.
	Bucket string

	// Prefix is prepended to every object key. Defaults to "runs".
	Prefix string

	// MaxPendingRuns caps how many unfinished runs are buffered at once.
	// Records for runs beyond the cap are dropped until slots free up.
	MaxPendingRuns int

	// PutTimeout bounds each upload.
	PutTimeout time.Duration
}

func (c ArchiveConfig) withDefaults() ArchiveConfig {
	if c.Prefix == "" {
		c.Prefix = "runs"
	}
	if c.MaxPendingRuns <= 0 {
		c.MaxPendingRuns = 256
	}
	if c.PutTimeout <= 0 {
		c.PutTimeout = 30 * time.Second
	}
	return c
}

// Validate checks the client settings.
func (c ArchiveConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("monitor: object store endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("monitor: object store endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("monitor: object store access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("monitor: object store secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("monitor: archive bucket is required")
	}
	return nil
}

// ArchiveOption customizes an ObjectArchiver.
type ArchiveOption func(*ObjectArchiver)

// WithArchiveLogger routes upload failures to the given logger.
func WithArchiveLogger(logger observe.Logger) ArchiveOption {
	return func(a *ObjectArchiver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// ObjectArchiver buffers each run's records and writes one JSON bundle per
// run to object storage when the run summary record arrives. Records that
// carry no run id are ignored.
type ObjectArchiver struct {
	client  ObjectWriter
	bucket  string
	prefix  string
	maxRuns int
	timeout time.Duration
	logger  observe.Logger

	mu      sync.Mutex
	closed  bool
	pending map[string][]Record
	wg      sync.WaitGroup
}

// NewObjectArchiver connects to the object store and archives runs into the
// configured bucket.
func NewObjectArchiver(cfg ArchiveConfig, opts ...ArchiveOption) (*ObjectArchiver, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: object store client: %w", err)
	}
	return newArchiver(client, cfg, opts...), nil
}

// NewObjectArchiverWithClient archives runs through an existing client.
func NewObjectArchiverWithClient(client ObjectWriter, cfg ArchiveConfig, opts ...ArchiveOption) (*ObjectArchiver, error) {
	if client == nil {
		return nil, errors.New("monitor: object store client is required")
	}
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("monitor: archive bucket is required")
	}
	return newArchiver(client, cfg, opts...), nil
}

func newArchiver(client ObjectWriter, cfg ArchiveConfig, opts ...ArchiveOption) *ObjectArchiver {
	a := &ObjectArchiver{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		maxRuns: cfg.MaxPendingRuns,
		timeout: cfg.PutTimeout,
		logger:  observe.NopLogger(),
		pending: make(map[string][]Record),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record implements Monitor. The upload happens on a separate goroutine so
// the run summary record is not delayed by object store latency.
func (a *ObjectArchiver) Record(_ context.Context, rec Record) {
	runID := rec.MetaString(MetaRunID)
	if runID == "" {
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if _, ok := a.pending[runID]; !ok && len(a.pending) >= a.maxRuns {
		a.mu.Unlock()
		return
	}
	a.pending[runID] = append(a.pending[runID], rec)

	var bundle []Record
	if rec.MetaString(MetaKind) == KindRun {
		bundle = a.pending[runID]
		delete(a.pending, runID)
		a.wg.Add(1)
	}
	a.mu.Unlock()

	if bundle == nil {
		return
	}
	go func() {
		defer a.wg.Done()
		a.upload(runID, bundle)
	}()
}

func (a *ObjectArchiver) upload(runID string, records []Record) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	data, err := json.Marshal(buildBundle(runID, records))
	if err != nil {
		a.logger.Warn(ctx, "run bundle not encodable",
			observe.Field{Key: "run_id", Value: runID},
			observe.Field{Key: "error", Value: err.Error()})
		return
	}

	key := a.objectKey(runID)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		a.logger.Warn(ctx, "run bundle upload failed",
			observe.Field{Key: "run_id", Value: runID},
			observe.Field{Key: "object", Value: key},
			observe.Field{Key: "error", Value: err.Error()})
		return
	}
	a.logger.Debug(ctx, "run bundle archived",
		observe.Field{Key: "run_id", Value: runID},
		observe.Field{Key: "object", Value: key},
		observe.Field{Key: "records", Value: len(records)})
}

func (a *ObjectArchiver) objectKey(runID string) string {
	return path.Join(a.prefix, runID+".json")
}

// Close waits for in-flight uploads and discards runs that never produced a
// run summary record.
func (a *ObjectArchiver) Close() error {
	a.mu.Lock()
	a.closed = true
	abandoned := len(a.pending)
	a.pending = make(map[string][]Record)
	a.mu.Unlock()

	a.wg.Wait()

	if abandoned > 0 {
		a.logger.Debug(context.Background(), "unfinished runs discarded",
			observe.Field{Key: "runs", Value: abandoned})
	}
	return nil
}

// Pending reports how many unfinished runs are buffered.
func (a *ObjectArchiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// RunBundle is the JSON document written per archived run.
type RunBundle struct {
	RunID      string         `json:"run_id"`
	ArchivedAt time.Time      `json:"archived_at"`
	Records    []BundleRecord `json:"records"`
}

// BundleRecord is one execution record inside a bundle.
type BundleRecord struct {
	Key        string         `json:"key"`
	Kind       string         `json:"kind,omitempty"`
	DurationMS float64        `json:"duration_ms"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	Time       time.Time      `json:"time"`
}

func buildBundle(runID string, records []Record) RunBundle {
	out := RunBundle{
		RunID:      runID,
		ArchivedAt: time.Now().UTC(),
		Records:    make([]BundleRecord, 0, len(records)),
	}
	for _, rec := range records {
		out.Records = append(out.Records, BundleRecord{
			Key:        rec.Key,
			Kind:       rec.MetaString(MetaKind),
			DurationMS: durationMillis(rec),
			Success:    rec.Success,
			Error:      rec.Error,
			Meta:       rec.Meta,
			Time:       rec.Time.UTC(),
		})
	}
	return out
}

// Ensure ObjectArchiver implements Monitor
var _ Monitor = (*ObjectArchiver)(nil)
