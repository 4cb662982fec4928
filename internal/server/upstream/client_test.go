package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file-1-abc.png")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestClient_Upload(t *testing.T) {
	t.Run("sends multipart field and returns image_url", func(t *testing.T) {
		var gotName, gotType, gotBody string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			file, header, err := r.FormFile("image")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer file.Close()
			b, _ := io.ReadAll(file)
			gotName = header.Filename
			gotType = header.Header.Get("Content-Type")
			gotBody = string(b)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"image_url":"https://img.example/cat.png"}`))
		}))
		defer srv.Close()

		c := New(srv.URL, "", 5*time.Second)
		url, err := c.Upload(context.Background(), File{
			Path:        stageFile(t, "png-bytes"),
			Name:        "cat.png",
			ContentType: "image/png",
		})

		require.NoError(t, err)
		assert.Equal(t, "https://img.example/cat.png", url)
		assert.Equal(t, "cat.png", gotName)
		assert.Equal(t, "image/png", gotType)
		assert.Equal(t, "png-bytes", gotBody)
	})

	t.Run("falls back to image field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"image":"https://img.example/b.png"}`))
		}))
		defer srv.Close()

		url, err := New(srv.URL, "image", time.Second).Upload(context.Background(), File{Path: stageFile(t, "x"), Name: "b.png"})
		require.NoError(t, err)
		assert.Equal(t, "https://img.example/b.png", url)
	})

	t.Run("custom field name", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, _, err := r.FormFile("upload"); err != nil {
				http.Error(w, "missing field", http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"image_url":"u"}`))
		}))
		defer srv.Close()

		_, err := New(srv.URL, "upload", time.Second).Upload(context.Background(), File{Path: stageFile(t, "x"), Name: "a.png"})
		assert.NoError(t, err)
	})

	t.Run("non-2xx is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			http.Error(w, "bad image", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		_, err := New(srv.URL, "", time.Second).Upload(context.Background(), File{Path: stageFile(t, "x"), Name: "a.png"})
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("missing url is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		_, err := New(srv.URL, "", time.Second).Upload(context.Background(), File{Path: stageFile(t, "x"), Name: "a.png"})
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("unreachable host is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		_, err := New(url, "", time.Second).Upload(context.Background(), File{Path: stageFile(t, "x"), Name: "a.png"})
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("missing staged file", func(t *testing.T) {
		_, err := New("http://127.0.0.1:1", "", time.Second).Upload(context.Background(), File{Path: "/nonexistent/file", Name: "a.png"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrRejected))
	})
}
