package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"github.com/nicolagi/emoji/emoji"
	log "github.com/sirupsen/logrus"
)

// handlerFunc returns the status code and body to respond with. Headers can
// be set on w, but the status and body must not be written.
type handlerFunc func(w http.ResponseWriter, r *http.Request) (int, []byte)

func (s *Server) routes() http.Handler {
	gated := http.NewServeMux()
	gated.Handle("POST /emoji/{filename}", s.handle(s.handleCreate))
	gated.Handle("GET /emoji/{name}", s.handle(s.handleFetch))
	gated.Handle("DELETE /emoji/{name}", s.handle(s.handleDelete))
	gated.Handle("GET /emojis", s.handle(s.handleListNames))
	gated.Handle("GET /emoji-blobs", s.handle(s.handleListBlobs))
	gated.Handle("POST /init", s.handle(s.handleInit))

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.handle(func(http.ResponseWriter, *http.Request) (int, []byte) {
		return http.StatusOK, []byte("Hello Emoji Users!!")
	}))
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("/", s.withBasicAuth(gated))
	return mux
}

func (s *Server) handle(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, body := fn(w, r)
		w.WriteHeader(status)
		if body != nil {
			if _, err := w.Write(body); err != nil {
				log.WithFields(log.Fields{
					"path": r.URL.Path,
					"err":  err,
				}).Error("Failed writing response")
			}
		}
	})
}

// failure maps err to a status code, logging server side errors.
func failure(logger *log.Entry, err error) (int, []byte) {
	var status int
	switch emoji.KindOf(err) {
	case emoji.KindInvalidInput:
		status = http.StatusBadRequest
	case emoji.KindConflict:
		status = http.StatusConflict
	case emoji.KindNotFound:
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		logger.WithField("err", err).Error()
	} else {
		logger.WithField("err", err).Debug("Rejected")
	}
	return status, []byte(err.Error())
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) (int, []byte) {
	filename := r.PathValue("filename")
	logger := log.WithFields(log.Fields{
		"op":       "create",
		"filename": filename,
	})
	name, extension, err := emoji.SplitFilename(filename)
	if err != nil {
		return failure(logger, err)
	}
	size, err := s.opts.service.ResolveSize(r.URL.Query().Get("size"))
	if err != nil {
		return failure(logger, err)
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return failure(logger, fmt.Errorf("content type %q: image expected: %w", ct, emoji.ErrInvalidInput))
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.opts.maxUpload.Bytes())))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logger.WithField("limit", s.opts.maxUpload.HumanReadable()).Debug("Body too large")
		return http.StatusRequestEntityTooLarge, []byte(fmt.Sprintf("body exceeds %s", s.opts.maxUpload.HumanReadable()))
	}
	if err != nil {
		return failure(logger, fmt.Errorf("reading body: %w", err))
	}
	if err := s.opts.service.Create(r.Context(), name, extension, size, data); err != nil {
		return failure(logger, err)
	}
	logger.Debug("Success")
	return http.StatusOK, []byte("successfully inserted emoji " + name)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) (int, []byte) {
	name := r.PathValue("name")
	logger := log.WithFields(log.Fields{
		"op":   "fetch",
		"name": name,
	})
	size, err := s.opts.service.ResolveSize(r.URL.Query().Get("size"))
	if err != nil {
		return failure(logger, err)
	}
	asset, err := s.opts.service.Fetch(r.Context(), name, size)
	if err != nil {
		return failure(logger, err)
	}
	w.Header().Set("Content-Type", asset.ContentType())
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge()))
	logger.Debug("Success")
	return http.StatusOK, asset.Data
}

// maxAge returns a number of seconds within a day of 15 days, so that
// clients don't all refresh at once.
func maxAge() int {
	const day = 24 * 60 * 60
	return int(math.Round(day * (15 + rand.Float64()*2 - 1)))
}

// handleDelete accepts "smile" as well as "smile.png". The extension, if
// given, also removes blobs that are no longer indexed.
func (s *Server) handleDelete(_ http.ResponseWriter, r *http.Request) (int, []byte) {
	raw := r.PathValue("name")
	logger := log.WithFields(log.Fields{
		"op":   "delete",
		"name": raw,
	})
	name, extension := raw, ""
	if strings.Contains(raw, ".") {
		var err error
		name, extension, err = emoji.SplitFilename(raw)
		if err != nil {
			return failure(logger, err)
		}
	}
	if err := s.opts.service.Delete(r.Context(), name, extension); err != nil {
		return failure(logger, err)
	}
	logger.Debug("Success")
	return http.StatusOK, []byte("deleted emoji " + name)
}

func (s *Server) handleListNames(w http.ResponseWriter, r *http.Request) (int, []byte) {
	logger := log.WithField("op", "list names")
	names, err := s.opts.service.ListNames(r.Context())
	if err != nil {
		return failure(logger, err)
	}
	return respondJSON(w, logger, names)
}

func (s *Server) handleListBlobs(w http.ResponseWriter, r *http.Request) (int, []byte) {
	logger := log.WithField("op", "list blobs")
	size, err := s.opts.service.ResolveSize(r.URL.Query().Get("size"))
	if err != nil {
		return failure(logger, err)
	}
	filenames, err := s.opts.service.ListBlobs(r.Context(), size)
	if err != nil {
		return failure(logger, err)
	}
	return respondJSON(w, logger, filenames)
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) (int, []byte) {
	logger := log.WithField("op", "init")
	result, err := s.opts.service.Reconcile(r.Context())
	if err != nil {
		return failure(logger, err)
	}
	if result.AlreadyInitialized {
		return http.StatusNotModified, nil
	}
	logger.WithFields(log.Fields{
		"created": len(result.Created),
		"skipped": len(result.Skipped),
	}).Info("Initialized")
	status, body := respondJSON(w, logger, result.Created)
	if status != http.StatusOK {
		return status, body
	}
	return http.StatusCreated, body
}

func respondJSON(w http.ResponseWriter, logger *log.Entry, v interface{}) (int, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		return failure(logger, err)
	}
	w.Header().Set("Content-Type", "application/json")
	return http.StatusOK, body
}
