// Package client talks to an emoji server over HTTP. Error responses are
// mapped back to the emoji package sentinel errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nicolagi/emoji/emoji"
)

// ErrUnauthorized is returned when the server rejects the credentials.
var ErrUnauthorized = errors.New("unauthorized")

type options struct {
	address  string
	timeout  time.Duration
	user     string
	password string
	client   *http.Client
}

type Option func(*options)

// WithAddress sets the server base URL, e.g., "http://localhost:5000".
func WithAddress(value string) Option {
	return func(o *options) {
		o.address = value
	}
}

func WithTimeout(value time.Duration) Option {
	return func(o *options) {
		o.timeout = value
	}
}

func WithBasicAuth(user, password string) Option {
	return func(o *options) {
		o.user = user
		o.password = password
	}
}

// WithHTTPClient replaces the HTTP client, whose timeout is then ignored.
func WithHTTPClient(value *http.Client) Option {
	return func(o *options) {
		o.client = value
	}
}

type Client struct {
	opts options
	base *url.URL
}

func New(opts ...Option) (*Client, error) {
	var c Client
	c.opts.address = "http://localhost:5000"
	c.opts.timeout = time.Minute
	for _, o := range opts {
		o(&c.opts)
	}
	base, err := url.Parse(strings.TrimSuffix(c.opts.address, "/"))
	if err != nil {
		return nil, fmt.Errorf("%q: %w", c.opts.address, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%q: scheme and host required", c.opts.address)
	}
	c.base = base
	if c.opts.client == nil {
		c.opts.client = &http.Client{Timeout: c.opts.timeout}
	}
	return &c, nil
}

// Put creates an asset from filename, e.g., "smile.png". The size is
// optional when the server has a single size configured.
func (c *Client) Put(ctx context.Context, filename, size string, data []byte) error {
	_, extension, err := emoji.SplitFilename(filename)
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension("." + extension)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/" + emoji.NormalizeExtension(extension)
	}
	_, _, err = c.do(ctx, http.MethodPost, "/emoji/"+filename, sizeQuery(size), contentType, data)
	return err
}

// Get returns the bytes and content type of an asset.
func (c *Client) Get(ctx context.Context, name, size string) (data []byte, contentType string, err error) {
	header, body, err := c.do(ctx, http.MethodGet, "/emoji/"+name, sizeQuery(size), "", nil)
	if err != nil {
		return nil, "", err
	}
	return body, header.Get("Content-Type"), nil
}

// Delete removes all renditions of an asset. The name may carry an
// extension.
func (c *Client) Delete(ctx context.Context, name string) error {
	_, _, err := c.do(ctx, http.MethodDelete, "/emoji/"+name, nil, "", nil)
	return err
}

func (c *Client) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := c.getJSON(ctx, "/emojis", nil, &names)
	return names, err
}

func (c *Client) Blobs(ctx context.Context, size string) ([]string, error) {
	var filenames []string
	err := c.getJSON(ctx, "/emoji-blobs", sizeQuery(size), &filenames)
	return filenames, err
}

// Init asks the server to populate its index. It returns the loaded
// filenames, and false if the index was already populated.
func (c *Client) Init(ctx context.Context) (created []string, initialized bool, err error) {
	_, body, err := c.do(ctx, http.MethodPost, "/init", nil, "", nil)
	if err != nil {
		return nil, false, err
	}
	if len(body) == 0 {
		return nil, false, nil
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, false, fmt.Errorf("decoding init response: %w", err)
	}
	return created, true, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v interface{}) error {
	_, body, err := c.do(ctx, http.MethodGet, path, query, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func sizeQuery(size string) url.Values {
	if size == "" {
		return nil
	}
	return url.Values{"size": []string{size}}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, value []byte) (http.Header, []byte, error) {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()
	var body io.Reader
	if value != nil {
		body = bytes.NewReader(value)
	}
	request, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, nil, err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if c.opts.user != "" {
		request.SetBasicAuth(c.opts.user, c.opts.password)
	}
	response, err := c.opts.client.Do(request)
	if response != nil && response.Body != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}
	if err != nil {
		return nil, nil, err
	}
	b, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, nil, err
	}
	switch response.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNotModified:
		return response.Header, b, nil
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return nil, nil, fmt.Errorf("%s: %w", b, emoji.ErrInvalidInput)
	case http.StatusConflict:
		return nil, nil, fmt.Errorf("%s: %w", b, emoji.ErrConflict)
	case http.StatusNotFound:
		return nil, nil, fmt.Errorf("%s: %w", b, emoji.ErrNotFound)
	case http.StatusUnauthorized:
		return nil, nil, ErrUnauthorized
	default:
		return nil, nil, fmt.Errorf("%s %s: %s: %s: %w", method, path, response.Status, b, emoji.ErrUpstream)
	}
}
