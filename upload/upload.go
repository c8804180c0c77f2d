// Package upload sends files chosen for file_upload questions
// somewhere durable and returns a stable reference to each one.
package upload

import (
	"context"
	"errors"
	"io"

	"github.com/Comcast/formflow/core"
)

// Request describes one file to upload.
type Request struct {
	FormId     string
	SessionId  string
	QuestionId string

	// Filename is the name the respondent's file had.
	Filename string

	Body io.Reader
}

// Uploader stores a file and returns a reference to it.
type Uploader interface {
	Upload(ctx context.Context, r *Request) (*core.FileRef, error)
}

// UploaderFunc adapts a function to an Uploader.
type UploaderFunc func(ctx context.Context, r *Request) (*core.FileRef, error)

func (f UploaderFunc) Upload(ctx context.Context, r *Request) (*core.FileRef, error) {
	return f(ctx, r)
}

var (
	NoBody     = errors.New("no body to upload")
	NoFilename = errors.New("no filename")
)

func (r *Request) check() error {
	if r.Body == nil {
		return NoBody
	}
	if r.Filename == "" {
		return NoFilename
	}
	return nil
}
