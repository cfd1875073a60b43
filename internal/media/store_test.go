package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	myMiddleware "agency-chat/internal/middleware"
	"agency-chat/internal/model"

	"github.com/stretchr/testify/require"
)

func TestStore_SaveNamespacesByActor(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root, "https://chat.example.com/", 16)
	require.NoError(t, err)

	url, err := s.Save(context.Background(), "u1", "Photo.PNG", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://chat.example.com/media/u1/"), url)
	require.True(t, strings.HasSuffix(url, ".png"), url)

	key := strings.TrimPrefix(url, "https://chat.example.com/media/")
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))

	other, err := s.Save(context.Background(), "u1", "Photo.PNG", strings.NewReader("again"))
	require.NoError(t, err)
	require.NotEqual(t, url, other, "random suffix keeps uploads apart")
}

func TestStore_RejectsOversizedAndLeavesNothing(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root, "", 4)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "u1", "big.jpg", strings.NewReader("12345"))
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(filepath.Join(root, "u1"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStore_RejectsBadInput(t *testing.T) {
	s, err := NewStore(t.TempDir(), "", 4)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "../etc", "x.png", strings.NewReader("a"))
	require.Error(t, err)
	_, err = s.Save(context.Background(), "u1", "x.png", strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestExtension(t *testing.T) {
	require.Equal(t, ".webm", extension("recording.webm"))
	require.Equal(t, ".bin", extension("noext"))
	require.Equal(t, ".bin", extension("weird.verylongext"))
}

func multipartBody(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandler_UploadAndServe(t *testing.T) {
	s, err := NewStore(t.TempDir(), "", 1024)
	require.NoError(t, err)
	h := NewHandler(s)

	body, ctype := multipartBody(t, "cat.gif", []byte("GIF89a"))
	r := httptest.NewRequest(http.MethodPost, "/api/media", body)
	r.Header.Set("Content-Type", ctype)
	r = r.WithContext(myMiddleware.WithActor(r.Context(), model.Actor{ID: "u1", Role: model.RoleClient}))
	w := httptest.NewRecorder()
	h.Upload(w, r)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res UploadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	require.True(t, strings.HasPrefix(res.URL, "/media/u1/"))

	get := httptest.NewRecorder()
	s.Handler().ServeHTTP(get, httptest.NewRequest(http.MethodGet, res.URL, nil))
	require.Equal(t, http.StatusOK, get.Code)
	got, _ := io.ReadAll(get.Body)
	require.Equal(t, "GIF89a", string(got))

	list := httptest.NewRecorder()
	s.Handler().ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/media/u1/", nil))
	require.Equal(t, http.StatusNotFound, list.Code)
}

func TestHandler_UploadTooLarge(t *testing.T) {
	s, err := NewStore(t.TempDir(), "", 8)
	require.NoError(t, err)

	body, ctype := multipartBody(t, "big.png", bytes.Repeat([]byte{1}, 64))
	r := httptest.NewRequest(http.MethodPost, "/api/media", body)
	r.Header.Set("Content-Type", ctype)
	r = r.WithContext(myMiddleware.WithActor(r.Context(), model.Actor{ID: "u1"}))
	w := httptest.NewRecorder()
	NewHandler(s).Upload(w, r)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
