package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/queryai/queryai/internal/config"
	"github.com/queryai/queryai/internal/storage"
	"github.com/queryai/queryai/internal/storage/s3"
)

var ErrDestinationExists = errors.New("export destination already exists")

// Destination is either a local Path or an object Key in Bucket.
type Destination struct {
	Path   string
	Bucket string
	Key    string
	Object bool
}

// ParseDestination accepts a file path or s3://bucket/key. An empty bucket
// (s3:///key) selects the configured one. A key that is empty or ends in "/"
// is completed with a generated name at export time.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, fmt.Errorf("export destination is required")
	}
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return Destination{Path: raw}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	return Destination{Bucket: bucket, Key: key, Object: true}, nil
}

func (d Destination) needsName() bool {
	if d.Object {
		return d.Key == "" || strings.HasSuffix(d.Key, "/")
	}
	return strings.HasSuffix(d.Path, "/") || strings.HasSuffix(d.Path, string(os.PathSeparator))
}

func (d Destination) name() string {
	if d.Object {
		return d.Key
	}
	return d.Path
}

// Dataset is the result being exported.
type Dataset struct {
	SessionID string
	Columns   []string
	Rows      [][]any
}

type Report struct {
	Location string `json:"location"`
	Format   Format `json:"format"`
	Bytes    int64  `json:"bytes"`
	Rows     int    `json:"rows"`
}

type Exporter struct {
	// OpenStore returns the store for bucket ("" is the configured default).
	// Nil disables s3:// destinations.
	OpenStore func(ctx context.Context, bucket string) (storage.ObjectStore, error)
	Overwrite bool
	Now       func() time.Time
}

// NewExporter wires s3:// destinations to the configured endpoint when one is
// set.
func NewExporter(cfg config.ExportConfig) *Exporter {
	exporter := &Exporter{Now: time.Now}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return exporter
	}
	exporter.OpenStore = func(ctx context.Context, bucket string) (storage.ObjectStore, error) {
		storeCfg := s3.Config{
			Endpoint:         cfg.Endpoint,
			Region:           cfg.Region,
			Bucket:           cfg.Bucket,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			UseSSL:           cfg.UseSSL,
			Prefix:           cfg.Prefix,
			AutoCreateBucket: cfg.AutoCreateBucket,
		}
		if bucket != "" {
			storeCfg.Bucket = bucket
		}
		return s3.New(ctx, storeCfg)
	}
	return exporter
}

// Export encodes data and writes it to dest. An empty format is inferred from
// the destination extension and defaults to csv.
func (e *Exporter) Export(ctx context.Context, dest string, format Format, data Dataset) (Report, error) {
	target, err := ParseDestination(dest)
	if err != nil {
		return Report{}, err
	}
	if format == "" {
		inferred, ok := FormatFromPath(target.name())
		if !ok {
			inferred = FormatCSV
		}
		format = inferred
	}
	if target.needsName() {
		key, err := storage.BuildExportKey(sessionComponent(data.SessionID), format.Extension(), e.now())
		if err != nil {
			return Report{}, err
		}
		if target.Object {
			target.Key += path.Base(key)
		} else {
			target.Path = filepath.Join(target.Path, path.Base(key))
		}
	}

	var buf bytes.Buffer
	if err := Write(&buf, format, data.Columns, data.Rows); err != nil {
		return Report{}, err
	}
	report := Report{Format: format, Bytes: int64(buf.Len()), Rows: len(data.Rows)}

	if target.Object {
		location, err := e.putObject(ctx, target, format, data, &buf)
		if err != nil {
			return Report{}, err
		}
		report.Location = location
		return report, nil
	}
	if err := e.writeFile(target.Path, buf.Bytes()); err != nil {
		return Report{}, err
	}
	report.Location = target.Path
	return report, nil
}

func (e *Exporter) writeFile(name string, payload []byte) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if e.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(name, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, name)
		}
		return fmt.Errorf("open export file: %w", err)
	}
	if _, err := file.Write(payload); err != nil {
		_ = file.Close()
		return fmt.Errorf("write export file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	return nil
}

func (e *Exporter) putObject(ctx context.Context, target Destination, format Format, data Dataset, body *bytes.Buffer) (string, error) {
	if e.OpenStore == nil {
		return "", fmt.Errorf("s3 export is not configured (set QUERYAI_EXPORT_S3_ENDPOINT)")
	}
	store, err := e.OpenStore(ctx, target.Bucket)
	if err != nil {
		return "", fmt.Errorf("open export store: %w", err)
	}
	if !e.Overwrite {
		_, err := store.Stat(ctx, target.Key)
		switch {
		case err == nil:
			return "", fmt.Errorf("%w: %s", ErrDestinationExists, store.Location(target.Key))
		case !errors.Is(err, storage.ErrObjectNotFound):
			return "", err
		}
	}
	size := int64(body.Len())
	if _, err := store.Put(ctx, target.Key, body, size, storage.PutOptions{
		ContentType: format.ContentType(),
		Metadata: map[string]string{
			"session-id": data.SessionID,
			"rows":       strconv.Itoa(len(data.Rows)),
		},
	}); err != nil {
		return "", err
	}
	return store.Location(target.Key), nil
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func sessionComponent(id string) string {
	if strings.TrimSpace(id) == "" {
		return "result"
	}
	return id
}
