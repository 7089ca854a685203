package gcs_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/financio/internal/gcs"
)

type bufferWriter struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (b *bufferWriter) Close() error {
	b.closed = true
	return b.closeErr
}

func TestObjectName(t *testing.T) {
	at := time.Date(2026, 10, 4, 23, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	assert.Equal(t, "reports/weekly/2026/10/04/user-1.html", gcs.ObjectName("user-1", at))
}

func TestReportArchive_Save(t *testing.T) {
	w := &bufferWriter{}
	var gotObject string
	archive := gcs.NewReportArchiveWithOpener("financio-reports", func(ctx context.Context, object string) io.WriteCloser {
		gotObject = object
		return w
	})

	uri, err := archive.Save(context.Background(), "user-1", time.Date(2026, 10, 5, 8, 0, 0, 0, time.UTC), []byte("<html></html>"))
	require.NoError(t, err)

	assert.Equal(t, "gs://financio-reports/reports/weekly/2026/10/05/user-1.html", uri)
	assert.Equal(t, "reports/weekly/2026/10/05/user-1.html", gotObject)
	assert.Equal(t, "<html></html>", w.String())
	assert.True(t, w.closed)
}

func TestReportArchive_SaveFinalizeError(t *testing.T) {
	w := &bufferWriter{closeErr: errors.New("403 forbidden")}
	archive := gcs.NewReportArchiveWithOpener("b", func(ctx context.Context, object string) io.WriteCloser { return w })

	_, err := archive.Save(context.Background(), "user-1", time.Now(), []byte("x"))
	assert.ErrorIs(t, err, w.closeErr)
}
