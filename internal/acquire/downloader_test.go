package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localbook/backend/pkg/errdefs"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload body"))
	}))
	defer srv.Close()

	d := NewDownloader(5 * time.Second)
	dest := t.TempDir()

	got, err := d.Fetch(context.Background(), "src-1", srv.URL+"/files/report.pdf", dest)
	require.NoError(t, err)
	assert.Equal(t, "src-1_report.pdf", filepath.Base(got))

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "payload body", string(data))
}

func TestFetchSameBasenameKeepsPayloadsApart(t *testing.T) {
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content of source A"))
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content of source B"))
	}))
	defer srvB.Close()

	d := NewDownloader(5 * time.Second)
	dest := t.TempDir()

	pathA, err := d.Fetch(context.Background(), "src-a", srvA.URL+"/docs/report.pdf", dest)
	require.NoError(t, err)
	pathB, err := d.Fetch(context.Background(), "src-b", srvB.URL+"/other/report.pdf", dest)
	require.NoError(t, err)

	assert.NotEqual(t, pathA, pathB)

	dataA, err := os.ReadFile(pathA)
	require.NoError(t, err)
	assert.Equal(t, "content of source A", string(dataA))

	dataB, err := os.ReadFile(pathB)
	require.NoError(t, err)
	assert.Equal(t, "content of source B", string(dataB))
}

func TestFetchDerivesNameWithoutPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	d := NewDownloader(5 * time.Second)

	got, err := d.Fetch(context.Background(), "src-2", srv.URL, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(got), "download_")
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDownloader(5 * time.Second)

	_, err := d.Fetch(context.Background(), "src-3", srv.URL+"/gone.pdf", t.TempDir())
	var acq *errdefs.AcquisitionError
	require.ErrorAs(t, err, &acq)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchConnectionRefused(t *testing.T) {
	d := NewDownloader(time.Second)

	_, err := d.Fetch(context.Background(), "src-4", "http://127.0.0.1:1/file.txt", t.TempDir())
	var acq *errdefs.AcquisitionError
	assert.ErrorAs(t, err, &acq)
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	d := NewDownloader(10 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Fetch(ctx, "src-5", srv.URL+"/slow.txt", t.TempDir())
	var acq *errdefs.AcquisitionError
	assert.ErrorAs(t, err, &acq)
}
