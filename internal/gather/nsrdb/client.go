// Package nsrdb requests, downloads and aggregates hourly solar-resource data
// from the NREL NSRDB API.
package nsrdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gridetl/internal/archive"
	"gridetl/internal/domain"
	"gridetl/internal/util"
)

// ErrNotReady is returned by a download attempt while NSRDB is still
// preparing the file.
var ErrNotReady = errors.New("nsrdb file not ready")

// bodySnippet is how much of an unexpected response body is kept in errors.
const bodySnippet = 300

// StatusError is returned for a non-success HTTP response.
type StatusError struct {
	Code int
	Body string // first bytes of the response body
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Client talks to the NSRDB download endpoint.
type Client struct {
	URL        string
	APIKey     string
	Email      string
	Attributes string
	Interval   int

	MaxAttempts int           // download attempts per file
	RetryDelay  time.Duration // first backoff delay between attempts

	http *http.Client
	log  *slog.Logger
}

// NewClient creates a Client with the given request timeout.
func NewClient(endpoint, apiKey, email, attributes string, interval int, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		URL:         endpoint,
		APIKey:      apiKey,
		Email:       email,
		Attributes:  attributes,
		Interval:    interval,
		MaxAttempts: 6,
		RetryDelay:  10 * time.Second,
		http:        &http.Client{Timeout: timeout},
		log:         log.With("component", "nsrdb-client"),
	}
}

// Query identifies one file: a city's data for one year.
type Query struct {
	Year int
	City domain.City
}

// WKT returns the point geometry NSRDB expects: POINT(lon lat).
func (q Query) WKT() string {
	return fmt.Sprintf("POINT(%s %s)",
		strconv.FormatFloat(q.City.Lon, 'f', -1, 64),
		strconv.FormatFloat(q.City.Lat, 'f', -1, 64))
}

// Response is the outcome of a request. A deferred response carries the URL
// the file will be published at; an immediate one carries the ZIP itself.
type Response struct {
	DownloadURL string
	Message     string
	Body        []byte
}

// Immediate reports whether the file came back in the response body.
func (r *Response) Immediate() bool { return r.Body != nil }

// Deferred reports whether the response only queued the file.
func (r *Response) Deferred() bool { return r.Body == nil }

// apiResponse is the JSON envelope of a queued request.
type apiResponse struct {
	Outputs struct {
		DownloadURL string `json:"downloadUrl"`
		Message     string `json:"message"`
	} `json:"outputs"`
	Errors []string `json:"errors"`
}

// Form returns the form body sent for q.
func (c *Client) Form(q Query) url.Values {
	return url.Values{
		"api_key":    {c.APIKey},
		"attributes": {c.Attributes},
		"names":      {strconv.Itoa(q.Year)},
		"interval":   {strconv.Itoa(c.Interval)},
		"email":      {c.Email},
		"wkt":        {q.WKT()},
	}
}

// Request asks NSRDB for one file. A 200 JSON response is deferred; a 200
// ZIP or CSV body is immediate. Anything else is an error carrying the status
// and the start of the body.
func (c *Client) Request(ctx context.Context, q Query) (*Response, error) {
	endpoint := c.URL
	if c.APIKey != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "api_key=" + url.QueryEscape(c.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(c.Form(q).Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(body)}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json":
		var ar apiResponse
		if err := json.Unmarshal(body, &ar); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		if len(ar.Errors) > 0 {
			return nil, fmt.Errorf("nsrdb errors: %s", strings.Join(ar.Errors, "; "))
		}
		return &Response{DownloadURL: ar.Outputs.DownloadURL, Message: ar.Outputs.Message}, nil
	case isFileType(mediaType):
		if body == nil {
			body = []byte{}
		}
		return &Response{Body: body}, nil
	}
	return nil, fmt.Errorf("unexpected content type %q: %s", mediaType, snippet(body))
}

func isFileType(mediaType string) bool {
	switch mediaType {
	case "application/zip", "application/x-zip-compressed", "application/octet-stream", "text/csv":
		return true
	}
	return false
}

func snippet(body []byte) string {
	if len(body) > bodySnippet {
		body = body[:bodySnippet]
	}
	return string(body)
}

// Download fetches a published file, polling with exponential backoff while
// NSRDB still reports it missing. Client errors other than 404 are not
// retried.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	var data []byte
	attempt := 0
	err := util.Retry(ctx, max(c.MaxAttempts, 1), c.RetryDelay, func() error {
		attempt++
		b, err := c.get(ctx, fileURL)
		if err != nil {
			c.log.Debug("download attempt failed", "url", fileURL, "attempt", attempt, "error", err)
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, util.Permanent(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, util.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotReady
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(body)}
	case resp.StatusCode >= 300:
		return nil, util.Permanent(&StatusError{Code: resp.StatusCode, Body: snippet(body)})
	}
	return body, nil
}

// Unzip returns the first file inside an NSRDB download archive, which is
// the CSV.
func Unzip(body []byte) ([]byte, error) {
	_, csv, err := archive.FirstEntry(body)
	if err != nil {
		return nil, fmt.Errorf("unzipping nsrdb file: %w", err)
	}
	return csv, nil
}
