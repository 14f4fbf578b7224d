// Package server exposes an emoji.Service over HTTP.
//
// Routes:
//
//	GET    /                      greeting, never gated by basic auth
//	POST   /emoji/{filename}      create from the raw request body
//	GET    /emoji/{name}          serve the image
//	DELETE /emoji/{name}          delete every rendition; name may carry an extension
//	GET    /emojis                JSON array of names
//	GET    /emoji-blobs           JSON array of blob store filenames
//	POST   /init                  populate the index from the blob store
//
// The emoji and emoji-blobs routes take a size query parameter, which may be
// omitted when a single size is configured. Errors are reported with the
// status code matching their emoji.Kind and the message as body.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/nicolagi/emoji/emoji"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultAddress    = ":5000"
	DefaultCORSOrigin = "https://teams.microsoft.com"
	DefaultMaxUpload  = datasize.MB

	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	// Populating the index goes through the whole blob store.
	writeTimeout = 5 * time.Minute
	idleTimeout  = 60 * time.Second
)

type Option func(*options)

type options struct {
	address      string
	service      *emoji.Service
	corsOrigin   string
	maxUpload    datasize.ByteSize
	user         string
	passwordHash []byte
}

func WithAddress(value string) Option {
	return func(o *options) {
		o.address = value
	}
}

func WithService(value *emoji.Service) Option {
	return func(o *options) {
		o.service = value
	}
}

// WithCORSOrigin sets the Access-Control-Allow-Origin response header.
func WithCORSOrigin(value string) Option {
	return func(o *options) {
		o.corsOrigin = value
	}
}

// WithMaxUpload limits the size of request bodies on create.
func WithMaxUpload(value datasize.ByteSize) Option {
	return func(o *options) {
		o.maxUpload = value
	}
}

// WithBasicAuth requires HTTP basic authentication on every route but the
// greeting. The password is checked against a bcrypt hash.
func WithBasicAuth(user string, passwordHash []byte) Option {
	return func(o *options) {
		o.user = user
		o.passwordHash = passwordHash
	}
}

type Server struct {
	opts options
	ln   net.Listener
	srv  *http.Server
}

func New(opts ...Option) (*Server, error) {
	var s Server
	s.opts.address = DefaultAddress
	s.opts.corsOrigin = DefaultCORSOrigin
	s.opts.maxUpload = DefaultMaxUpload
	for _, o := range opts {
		o(&s.opts)
	}
	if s.opts.service == nil {
		return nil, errors.New("no service configured")
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return &s, nil
}

// Handler returns the routes wrapped in the CORS, logging and, if
// configured, basic auth middleware.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withCORS(s.routes()))
}

func (s *Server) Listen() (addr string, err error) {
	s.ln, err = net.Listen("tcp", s.opts.address)
	if err != nil {
		return
	}
	addr = s.ln.Addr().String()
	log.WithField("addr", addr).Info("Listening")
	return
}

// Serve serves requests until Shutdown is called, in which case it returns
// nil. Listen must have been called.
func (s *Server) Serve() error {
	if err := s.srv.Serve(s.ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
