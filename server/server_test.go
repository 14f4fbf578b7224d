package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/nicolagi/emoji/emoji"
	"github.com/nicolagi/emoji/server"
	"github.com/nicolagi/emoji/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T, blobs storage.BlobStore, buckets map[emoji.Size]string) *emoji.Service {
	t.Helper()
	svc, err := emoji.NewService(blobs, storage.NewCachedIndex(storage.NewInMemoryIndex(), 0, time.Hour), emoji.WithBuckets(buckets))
	require.Nil(t, err)
	return svc
}

func newDisposableServer(t *testing.T, opts ...server.Option) (*httptest.Server, *storage.InMemoryBlobStore) {
	t.Helper()
	blobs := storage.NewInMemoryBlobStore()
	svc := newService(t, blobs, map[emoji.Size]string{emoji.SizeFull: "emojis"})
	s, err := server.New(append([]server.Option{server.WithService(svc)}, opts...)...)
	require.Nil(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, blobs
}

func do(t *testing.T, method, url, contentType string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.Nil(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.Nil(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err := io.ReadAll(resp.Body)
	require.Nil(t, err)
	return resp, b
}

func TestServer(t *testing.T) {
	t.Run("greeting", func(t *testing.T) {
		ts, _ := newDisposableServer(t)
		resp, body := do(t, http.MethodGet, ts.URL+"/", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Hello Emoji Users!!", string(body))
	})
	t.Run("every response carries CORS headers", func(t *testing.T) {
		ts, _ := newDisposableServer(t)
		for _, path := range []string{"/", "/emoji/missing", "/emojis"} {
			resp, _ := do(t, http.MethodGet, ts.URL+path, "", nil)
			assert.Equal(t, "https://teams.microsoft.com", resp.Header.Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin, X-Requested-With, Content-Type, Accept", resp.Header.Get("Access-Control-Allow-Headers"))
		}
	})
	t.Run("configured CORS origin", func(t *testing.T) {
		ts, _ := newDisposableServer(t, server.WithCORSOrigin("https://example.com"))
		resp, _ := do(t, http.MethodOptions, ts.URL+"/emoji/smile.png", "", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	})
	t.Run("create then fetch", func(t *testing.T) {
		ts, blobs := newDisposableServer(t)
		resp, body := do(t, http.MethodPost, ts.URL+"/emoji/smile.png", "image/png", []byte{0xde, 0xad, 0xbe, 0xef})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		assert.Equal(t, "successfully inserted emoji smile", string(body))

		stored, err := blobs.Get(context.Background(), "emojis", "smile.png")
		require.Nil(t, err)
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, stored)

		resp, body = do(t, http.MethodGet, ts.URL+"/emoji/smile", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, body)

		cacheControl := resp.Header.Get("Cache-Control")
		require.True(t, strings.HasPrefix(cacheControl, "public, max-age="), cacheControl)
		seconds, err := strconv.Atoi(strings.TrimPrefix(cacheControl, "public, max-age="))
		require.Nil(t, err)
		assert.GreaterOrEqual(t, seconds, 14*24*60*60)
		assert.LessOrEqual(t, seconds, 16*24*60*60)
	})
	t.Run("jpg is served as jpeg", func(t *testing.T) {
		ts, _ := newDisposableServer(t)
		resp, _ := do(t, http.MethodPost, ts.URL+"/emoji/photo.jpg", "image/jpeg", []byte{0xff, 0xd8})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = do(t, http.MethodGet, ts.URL+"/emoji/photo", "", nil)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	})
	t.Run("status codes", func(t *testing.T) {
		ts, _ := newDisposableServer(t, server.WithMaxUpload(4*datasize.B))
		resp, _ := do(t, http.MethodPost, ts.URL+"/emoji/smile.png", "image/png", []byte("ok"))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		testCases := []struct {
			method, path, contentType string
			body                      []byte
			want                      int
		}{
			{http.MethodPost, "/emoji/smile.png", "image/png", []byte("abc"), http.StatusConflict},
			{http.MethodPost, "/emoji/noext", "image/png", []byte("x"), http.StatusBadRequest},
			{http.MethodPost, "/emoji/wink.png", "text/plain", []byte("x"), http.StatusBadRequest},
			{http.MethodPost, "/emoji/wink.png?size=24", "image/png", []byte("x"), http.StatusBadRequest},
			{http.MethodPost, "/emoji/big.png", "image/png", []byte("too large"), http.StatusRequestEntityTooLarge},
			{http.MethodGet, "/emoji/missing", "", nil, http.StatusNotFound},
			{http.MethodGet, "/emoji/smile?size=huge", "", nil, http.StatusBadRequest},
			{http.MethodGet, "/emoji-blobs?size=36", "", nil, http.StatusBadRequest},
		}
		for _, tc := range testCases {
			resp, body := do(t, tc.method, ts.URL+tc.path, tc.contentType, tc.body)
			assert.Equal(t, tc.want, resp.StatusCode, "%s %s: %s", tc.method, tc.path, body)
		}
	})
	t.Run("delete accepts a name with or without extension", func(t *testing.T) {
		ts, blobs := newDisposableServer(t)
		for _, filename := range []string{"smile.png", "wink.gif"} {
			resp, _ := do(t, http.MethodPost, ts.URL+"/emoji/"+filename, "image/png", []byte("x"))
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
		resp, body := do(t, http.MethodDelete, ts.URL+"/emoji/smile", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "deleted emoji smile", string(body))
		resp, body = do(t, http.MethodDelete, ts.URL+"/emoji/wink.gif", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "deleted emoji wink", string(body))

		for _, name := range []string{"smile", "wink"} {
			resp, _ := do(t, http.MethodGet, ts.URL+"/emoji/"+name, "", nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		}
		filenames, err := listBucket(blobs, "emojis")
		require.Nil(t, err)
		assert.Empty(t, filenames)

		resp, _ = do(t, http.MethodDelete, ts.URL+"/emoji/smile", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
	t.Run("dotted names never reach another asset", func(t *testing.T) {
		ts, blobs := newDisposableServer(t)
		resp, _ := do(t, http.MethodPost, ts.URL+"/emoji/my.png", "image/png", []byte("mine"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = do(t, http.MethodPost, ts.URL+"/emoji/my.smile.png", "image/png", []byte("other"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = do(t, http.MethodDelete, ts.URL+"/emoji/my.smile.png", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp, body := do(t, http.MethodGet, ts.URL+"/emoji/my", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "mine", string(body))
		filenames, err := listBucket(blobs, "emojis")
		require.Nil(t, err)
		assert.Equal(t, []string{"my.png"}, filenames)

		resp, body = do(t, http.MethodDelete, ts.URL+"/emoji/my.png", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "deleted emoji my", string(body))
		resp, _ = do(t, http.MethodGet, ts.URL+"/emoji/my", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
	t.Run("lists", func(t *testing.T) {
		ts, _ := newDisposableServer(t)
		resp, body := do(t, http.MethodGet, ts.URL+"/emojis", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `[]`, string(body))

		for _, filename := range []string{"wink.gif", "smile.png"} {
			resp, _ := do(t, http.MethodPost, ts.URL+"/emoji/"+filename, "image/png", []byte("x"))
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
		resp, body = do(t, http.MethodGet, ts.URL+"/emojis", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.JSONEq(t, `["smile", "wink"]`, string(body))

		resp, body = do(t, http.MethodGet, ts.URL+"/emoji-blobs", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var filenames []string
		require.Nil(t, json.Unmarshal(body, &filenames))
		assert.ElementsMatch(t, []string{"smile.png", "wink.gif"}, filenames)
	})
	t.Run("init loads once", func(t *testing.T) {
		ts, blobs := newDisposableServer(t)
		ctx := context.Background()
		require.Nil(t, blobs.Put(ctx, "emojis", "slackbot.png", []byte("bot")))
		require.Nil(t, blobs.Put(ctx, "emojis", "smile.png", []byte("smile")))

		resp, body := do(t, http.MethodPost, ts.URL+"/init", "", nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.JSONEq(t, `["slackbot.png", "smile.png"]`, string(body))

		resp, body = do(t, http.MethodGet, ts.URL+"/emoji/smile", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []byte("smile"), body)

		resp, _ = do(t, http.MethodPost, ts.URL+"/init", "", nil)
		assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	})
	t.Run("sizes", func(t *testing.T) {
		svc := newService(t, storage.NewInMemoryBlobStore(), map[emoji.Size]string{
			emoji.SizeFull: "emojis",
			emoji.Size24:   "emojis-24",
		})
		s, err := server.New(server.WithService(svc))
		require.Nil(t, err)
		ts := httptest.NewServer(s.Handler())
		defer ts.Close()

		resp, _ := do(t, http.MethodPost, ts.URL+"/emoji/smile.png?size=24", "image/png", []byte("small"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp, body := do(t, http.MethodGet, ts.URL+"/emoji/smile?size=24", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []byte("small"), body)
		resp, _ = do(t, http.MethodGet, ts.URL+"/emoji/smile?size=full", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp, _ = do(t, http.MethodGet, ts.URL+"/emoji/smile", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.Nil(t, err)
	ts, _ := newDisposableServer(t, server.WithBasicAuth("emoji", hash))

	get := func(path, user, password string) int {
		req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		require.Nil(t, err)
		if user != "" {
			req.SetBasicAuth(user, password)
		}
		resp, err := http.DefaultClient.Do(req)
		require.Nil(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, get("/", "", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/emojis", "", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/emojis", "emoji", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, get("/emojis", "other", "secret"))
	assert.Equal(t, http.StatusOK, get("/emojis", "emoji", "secret"))
}

func TestListenServeShutdown(t *testing.T) {
	svc := newService(t, storage.NewInMemoryBlobStore(), map[emoji.Size]string{emoji.SizeFull: "emojis"})
	s, err := server.New(server.WithService(svc), server.WithAddress("127.0.0.1:0"))
	require.Nil(t, err)
	addr, err := s.Listen()
	require.Nil(t, err)
	served := make(chan error, 1)
	go func() {
		served <- s.Serve()
	}()

	resp, body := do(t, http.MethodGet, "http://"+addr+"/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello Emoji Users!!", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Shutdown(ctx))
	assert.Nil(t, <-served)
}

func TestNewRequiresService(t *testing.T) {
	_, err := server.New()
	assert.NotNil(t, err)
}

func listBucket(blobs storage.BlobStore, bucket string) ([]string, error) {
	var filenames []string
	err := blobs.List(context.Background(), bucket, func(filename string) error {
		filenames = append(filenames, filename)
		return nil
	})
	return filenames, err
}
