// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycheng/paperboy/internal/retry"
	"github.com/lycheng/paperboy/pkg/types"
)

func init() {
	retry.BaseDelay = 1 * time.Millisecond
}

func testConfig(dir string) types.FetchConfig {
	return types.FetchConfig{
		HTTPConfig: types.HTTPConfig{UserAgent: "paperboy-test/0"},
		Retry:      types.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
		PapersDir:  dir,
	}
}

func TestFetch_WritesIDAddressedFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/pdf", r.Header.Get("Accept"))
		assert.Equal(t, "paperboy-test/0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, "%PDF-1.5 fake body")
	}))
	defer ts.Close()

	dir := t.TempDir()
	f := New(ts.Client(), testConfig(dir))

	path, err := f.Fetch(context.Background(), "p1", ts.URL+"/p1.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "raw", "p1.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.5 fake body", string(data))

	// No temp artifacts left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "raw"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetch_RefetchOverwritesDeterministically(t *testing.T) {
	var body atomic.Value
	body.Store("first")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body.Load().(string))
	}))
	defer ts.Close()

	dir := t.TempDir()
	f := New(ts.Client(), testConfig(dir))
	ctx := context.Background()

	first, err := f.Fetch(ctx, "p1", ts.URL)
	require.NoError(t, err)

	body.Store("second")
	second, err := f.Fetch(ctx, "p1", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer ts.Close()

	f := New(ts.Client(), testConfig(t.TempDir()))
	_, err := f.Fetch(context.Background(), "p1", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetch_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := New(ts.Client(), testConfig(t.TempDir()))
	_, err := f.Fetch(context.Background(), "gone", ts.URL)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ts.URL, fe.URL)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_ExhaustedRetriesReturnFetchError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	dir := t.TempDir()
	f := New(ts.Client(), testConfig(dir))
	_, err := f.Fetch(context.Background(), "p1", ts.URL)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)

	// The failed download leaves no partial file behind.
	_, statErr := os.Stat(filepath.Join(dir, "raw", "p1.pdf"))
	assert.True(t, os.IsNotExist(statErr))
}
