package fetcher

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	pic := tinyPNG(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/avatar.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pic)
	})
	mux.HandleFunc("/untyped", func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write(pic)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><meta property="og:image" content="/avatar.png"></head><body><img src="/other.png"></body></html>`))
	})
	mux.HandleFunc("/img-page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<p>hi</p><img src="avatar.png">`))
	})
	mux.HandleFunc("/empty-page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<p>nothing here</p>`))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/huge", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(make([]byte, MaxImageSize+10))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchImage(t *testing.T) {
	srv := newServer(t)
	f := New(srv.Client())
	ctx := context.Background()

	t.Run("direct", func(t *testing.T) {
		img, err := f.FetchImage(ctx, srv.URL+"/avatar.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", img.ContentType)
		_, err = png.Decode(bytes.NewReader(img.Data))
		assert.NoError(t, err)
	})

	t.Run("sniffed content type", func(t *testing.T) {
		img, err := f.FetchImage(ctx, srv.URL+"/untyped")
		require.NoError(t, err)
		assert.Equal(t, "image/png", img.ContentType)
	})

	t.Run("og:image is followed", func(t *testing.T) {
		img, err := f.FetchImage(ctx, srv.URL+"/page")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/avatar.png", img.URL)
	})

	t.Run("relative img is followed", func(t *testing.T) {
		img, err := f.FetchImage(ctx, srv.URL+"/img-page")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/avatar.png", img.URL)
	})

	t.Run("page without image", func(t *testing.T) {
		_, err := f.FetchImage(ctx, srv.URL+"/empty-page")
		assert.ErrorIs(t, err, ErrNotImage)
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := f.FetchImage(ctx, srv.URL+"/json")
		assert.ErrorIs(t, err, ErrNotImage)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := f.FetchImage(ctx, srv.URL+"/huge")
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("http error", func(t *testing.T) {
		_, err := f.FetchImage(ctx, srv.URL+"/missing")
		assert.ErrorContains(t, err, "HTTP 404")
	})
}

func TestFetchImageRejectsSchemes(t *testing.T) {
	for _, u := range []string{"ftp://example.com/a.png", "file:///etc/passwd", "example.com/a.png", "http://"} {
		_, err := FetchImage(context.Background(), u)
		assert.Error(t, err, u)
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL(" https://cdn.example/a.png"))
	assert.True(t, IsURL("http://x"))
	assert.False(t, IsURL("www.example.com"))
	assert.False(t, IsURL("кот"))
}
