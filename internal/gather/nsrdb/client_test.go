package nsrdb

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridetl/internal/domain"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var waco = domain.City{Name: "Waco", Lat: 32, Lon: -97}

func zipOf(t *testing.T, name string, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write(body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testClient(url string) *Client {
	c := NewClient(url, "KEY", "me@example.com", "ghi,dni", 60, 5*time.Second, quiet)
	c.MaxAttempts = 4
	c.RetryDelay = time.Millisecond
	return c
}

func TestQueryWKT(t *testing.T) {
	assert.Equal(t, "POINT(-97 32)", Query{Year: 2022, City: waco}.WKT())
	assert.Equal(t, "POINT(-97.5 32.25)", Query{City: domain.City{Lat: 32.25, Lon: -97.5}}.WKT())
}

func TestRequestDeferred(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, "KEY", r.URL.Query().Get("api_key"))

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "POINT(-97 32)", r.PostForm.Get("wkt"))
		assert.Equal(t, "2022", r.PostForm.Get("names"))
		assert.Equal(t, "60", r.PostForm.Get("interval"))
		assert.Equal(t, "ghi,dni", r.PostForm.Get("attributes"))
		assert.Equal(t, "me@example.com", r.PostForm.Get("email"))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		io.WriteString(w, `{"inputs":{},"outputs":{"message":"File generation in progress","downloadUrl":"https://example.com/f.zip"},"errors":[]}`)
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).Request(context.Background(), Query{Year: 2022, City: waco})
	require.NoError(t, err)
	assert.True(t, resp.Deferred())
	assert.Equal(t, "https://example.com/f.zip", resp.DownloadURL)
	assert.Equal(t, "File generation in progress", resp.Message)
}

func TestRequestImmediate(t *testing.T) {
	body := zipOf(t, "x.csv", []byte("a,b\n"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write(body)
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).Request(context.Background(), Query{Year: 2022, City: waco})
	require.NoError(t, err)
	assert.True(t, resp.Immediate())
	assert.Equal(t, body, resp.Body)
}

func TestRequestErrors(t *testing.T) {
	long := strings.Repeat("e", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bad":
			http.Error(w, long, http.StatusBadRequest)
		case "/html":
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<html>maintenance</html>")
		case "/apierr":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"outputs":{},"errors":["bad wkt"]}`)
		}
	}))
	defer srv.Close()

	_, err := testClient(srv.URL+"/bad").Request(context.Background(), Query{Year: 2022, City: waco})
	var se *StatusError
	require.True(t, errors.As(err, &se), "err = %v", err)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Len(t, se.Body, bodySnippet)

	_, err = testClient(srv.URL+"/html").Request(context.Background(), Query{Year: 2022, City: waco})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance")

	_, err = testClient(srv.URL+"/apierr").Request(context.Background(), Query{Year: 2022, City: waco})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad wkt")
}

func TestDownloadPollsUntilReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "ready")
	}))
	defer srv.Close()

	data, err := testClient(srv.URL).Download(context.Background(), srv.URL+"/f.zip")
	require.NoError(t, err)
	assert.Equal(t, "ready", string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadNotReady(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := testClient(srv.URL).Download(context.Background(), srv.URL+"/f.zip")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDownloadForbiddenIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Download(context.Background(), srv.URL+"/f.zip")
	var se *StatusError
	require.True(t, errors.As(err, &se), "err = %v", err)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnzip(t *testing.T) {
	data, err := Unzip(zipOf(t, "123_2022.csv", []byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = Unzip([]byte("not a zip"))
	assert.Error(t, err)
}
