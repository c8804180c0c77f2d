// Package http is a persist.Sink that POSTs Records as JSON.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"

	"github.com/Comcast/formflow/persist"

	"golang.org/x/net/publicsuffix"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("POST %s: %s", e.URL, e.Status)
}

// Sink POSTs each Record to URL.  Any 2xx status is success.  The
// response body is ignored.
//
// The Sink's client has a cookie jar, so a remote store can use
// cookies for (say) session affinity.
type Sink struct {
	URL     string
	Headers http.Header
	Client  *http.Client

	Debug bool
}

// NewSink makes a Sink with its own client and cookie jar.
func NewSink(url string) (*Sink, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Sink{
		URL:     url,
		Headers: make(http.Header),
		Client: &http.Client{
			Jar: jar,
		},
	}, nil
}

func (s *Sink) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("persist/http.Sink."+format, args...)
	}
}

// Save implements persist.Sink.
func (s *Sink) Save(ctx context.Context, r *persist.Record) error {
	js, err := json.Marshal(r)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(js))
	if err != nil {
		return err
	}
	for k, vs := range s.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	s.logf("Save %s %s %s", r.SessionId, r.Status, resp.Status)

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		return &StatusError{
			URL:        s.URL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	return nil
}
