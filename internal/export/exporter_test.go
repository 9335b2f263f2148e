package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/queryai/queryai/internal/config"
	"github.com/queryai/queryai/internal/storage"
)

var testData = Dataset{
	SessionID: "abc123",
	Columns:   []string{"id", "name"},
	Rows:      [][]any{{int64(1), "Alice"}, {int64(2), "Bob"}},
}

func fixedNow() time.Time {
	return time.Date(2026, time.March, 4, 10, 11, 12, 0, time.UTC)
}

func TestParseDestination(t *testing.T) {
	dest, err := ParseDestination("s3://reports/daily/out.csv")
	if err != nil {
		t.Fatalf("ParseDestination() error = %v", err)
	}
	if !dest.Object || dest.Bucket != "reports" || dest.Key != "daily/out.csv" {
		t.Fatalf("dest = %#v", dest)
	}
	dest, err = ParseDestination("s3:///daily/")
	if err != nil || dest.Bucket != "" || !dest.needsName() {
		t.Fatalf("dest = %#v, err = %v", dest, err)
	}
	dest, err = ParseDestination("out/result.json")
	if err != nil || dest.Object || dest.Path != "out/result.json" {
		t.Fatalf("dest = %#v, err = %v", dest, err)
	}
	if _, err := ParseDestination("  "); err == nil {
		t.Fatal("expected error for empty destination")
	}
}

func TestExportLocalFileInfersFormat(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "users.json")
	exporter := &Exporter{Now: fixedNow}

	report, err := exporter.Export(context.Background(), target, "", testData)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if report.Format != FormatJSON || report.Rows != 2 || report.Location != target {
		t.Fatalf("report = %#v", report)
	}
	payload, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if int64(len(payload)) != report.Bytes || !strings.Contains(string(payload), `"row_count": 2`) {
		t.Fatalf("payload = %s", payload)
	}
}

func TestExportLocalRefusesExistingFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "users.csv")
	if err := os.WriteFile(target, []byte("keep"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := (&Exporter{}).Export(context.Background(), target, FormatCSV, testData)
	if !errors.Is(err, ErrDestinationExists) {
		t.Fatalf("Export() error = %v, want ErrDestinationExists", err)
	}
	payload, _ := os.ReadFile(target)
	if string(payload) != "keep" {
		t.Fatalf("file was modified: %q", payload)
	}

	if _, err := (&Exporter{Overwrite: true}).Export(context.Background(), target, FormatCSV, testData); err != nil {
		t.Fatalf("Export(overwrite) error = %v", err)
	}
	payload, _ = os.ReadFile(target)
	if string(payload) != "id,name\n1,Alice\n2,Bob\n" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestExportLocalDirectoryGeneratesName(t *testing.T) {
	dir := t.TempDir() + string(os.PathSeparator)
	report, err := (&Exporter{Now: fixedNow}).Export(context.Background(), dir, FormatCSV, testData)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if filepath.Base(report.Location) != "abc123-101112.csv" {
		t.Fatalf("location = %q", report.Location)
	}
	if _, err := os.Stat(report.Location); err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
}

func TestExportObjectStore(t *testing.T) {
	store := &memoryStore{bucket: "reports", objects: map[string][]byte{}}
	var openedBucket string
	exporter := &Exporter{
		Now: fixedNow,
		OpenStore: func(_ context.Context, bucket string) (storage.ObjectStore, error) {
			openedBucket = bucket
			return store, nil
		},
	}

	report, err := exporter.Export(context.Background(), "s3://reports/daily/", FormatParquet, testData)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if openedBucket != "reports" {
		t.Fatalf("bucket = %q", openedBucket)
	}
	if report.Location != "s3://reports/daily/abc123-101112.parquet" {
		t.Fatalf("location = %q", report.Location)
	}
	if store.lastOpts.ContentType != "application/octet-stream" || store.lastOpts.Metadata["rows"] != "2" {
		t.Fatalf("put options = %#v", store.lastOpts)
	}
	if int64(len(store.objects["daily/abc123-101112.parquet"])) != report.Bytes {
		t.Fatalf("stored %d bytes, report says %d", len(store.objects["daily/abc123-101112.parquet"]), report.Bytes)
	}

	_, err = exporter.Export(context.Background(), "s3://reports/daily/abc123-101112.parquet", FormatParquet, testData)
	if !errors.Is(err, ErrDestinationExists) {
		t.Fatalf("second Export() error = %v, want ErrDestinationExists", err)
	}
}

func TestExportObjectStoreNotConfigured(t *testing.T) {
	exporter := NewExporter(config.ExportConfig{})
	_, err := exporter.Export(context.Background(), "s3://bucket/key.csv", "", testData)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("Export() error = %v", err)
	}
}

type memoryStore struct {
	bucket   string
	objects  map[string][]byte
	lastOpts storage.PutOptions
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = buf.Bytes()
	m.lastOpts = opts
	return storage.ObjectInfo{Key: key, Size: int64(buf.Len())}, nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	payload, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}

func (m *memoryStore) Location(key string) string {
	return "s3://" + m.bucket + "/" + key
}
