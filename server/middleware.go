package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.opts.corsOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
		next.ServeHTTP(w, r)
	})
}

// withBasicAuth is a no-op unless a user is configured.
func (s *Server) withBasicAuth(next http.Handler) http.Handler {
	if s.opts.user == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(s.opts.user)) != 1 ||
			bcrypt.CompareHashAndPassword(s.opts.passwordHash, []byte(password)) != nil {
			log.WithFields(log.Fields{
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
				"user":   user,
			}).Warn("Unauthorized")
			w.Header().Set("WWW-Authenticate", `Basic realm="emoji"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *loggingResponseWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		logger := log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rw.Status(),
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		})
		if rw.Status() >= http.StatusInternalServerError {
			logger.Warn("Request failed")
		} else {
			logger.Debug("Request served")
		}
	})
}
