package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/Comcast/formflow/core"
)

// HTTP is an Uploader that POSTs a multipart form to an upload
// endpoint, which should respond with a JSON core.FileRef.
//
// The multipart form has the file in the "file" part and the ids in
// "formId", "sessionId", and "questionId" fields.
type HTTP struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
	Debug   bool
}

func NewHTTP(url string) *HTTP {
	return &HTTP{
		URL:    url,
		Client: &http.Client{},
	}
}

func (u *HTTP) logf(format string, args ...interface{}) {
	if u.Debug {
		log.Printf("upload.HTTP."+format, args...)
	}
}

func (u *HTTP) Upload(ctx context.Context, r *Request) (*core.FileRef, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(write(mw, r))
	}()

	req, err := http.NewRequestWithContext(ctx, "POST", u.URL, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range u.Headers {
		req.Header.Set(k, v)
	}

	c := u.Client
	if c == nil {
		c = http.DefaultClient
	}

	u.logf("Upload %s %s %s", r.SessionId, r.QuestionId, r.Filename)

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		return nil, fmt.Errorf("upload to %s: %s", u.URL, resp.Status)
	}

	var ref core.FileRef
	if err = json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return nil, fmt.Errorf("upload response: %w", err)
	}
	if ref.URL == "" {
		return nil, fmt.Errorf("upload response from %s has no url", u.URL)
	}
	if ref.Name == "" {
		ref.Name = r.Filename
	}

	return &ref, nil
}

func write(mw *multipart.Writer, r *Request) error {
	for _, f := range [][2]string{
		{"formId", r.FormId},
		{"sessionId", r.SessionId},
		{"questionId", r.QuestionId},
	} {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", r.Filename)
	if err != nil {
		return err
	}
	if _, err = io.Copy(part, r.Body); err != nil {
		return err
	}
	return mw.Close()
}
