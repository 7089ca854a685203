// Package gcs archives rendered reports in a Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// ObjectOpener opens a writer for an object. The object is committed when
// the writer is closed.
type ObjectOpener func(ctx context.Context, object string) io.WriteCloser

// ReportArchive stores one HTML object per user per report.
type ReportArchive struct {
	bucket string
	open   ObjectOpener
}

// NewReportArchive archives into bucket using client. It assumes
// Application Default Credentials are configured.
func NewReportArchive(client *storage.Client, bucket string) *ReportArchive {
	return NewReportArchiveWithOpener(bucket, func(ctx context.Context, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "text/html; charset=utf-8"
		return w
	})
}

// NewReportArchiveWithOpener archives through open.
func NewReportArchiveWithOpener(bucket string, open ObjectOpener) *ReportArchive {
	return &ReportArchive{bucket: bucket, open: open}
}

// ObjectName is the object path of a user's report generated at t.
func ObjectName(userID string, t time.Time) string {
	return fmt.Sprintf("reports/weekly/%s/%s.html", t.UTC().Format("2006/01/02"), userID)
}

// Save uploads html and returns its gs:// URI.
func (a *ReportArchive) Save(ctx context.Context, userID string, generatedAt time.Time, html []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	object := ObjectName(userID, generatedAt)
	w := a.open(ctx, object)

	if _, err := io.Copy(w, bytes.NewReader(html)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Save: copy report to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Save: finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}
