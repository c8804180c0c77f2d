package upload

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Comcast/formflow/core"

	"github.com/google/uuid"
)

// Dir is an Uploader that writes files under a local directory.
//
// A file lands at Root/<session>/<question>/<uuid>-<base filename>.
type Dir struct {
	Root string

	// BaseURL, if not empty, prefixes the relative path in the
	// returned FileRef.  Otherwise the URL is a file URL.
	BaseURL string
}

func NewDir(root string) *Dir {
	return &Dir{
		Root: root,
	}
}

func clean(s string) string {
	s = filepath.Base(filepath.Clean("/" + s))
	if s == "/" || s == "." || s == "" {
		return "_"
	}
	return s
}

func (d *Dir) Upload(ctx context.Context, r *Request) (*core.FileRef, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	name := uuid.NewString() + "-" + clean(r.Filename)
	rel := filepath.Join(clean(r.SessionId), clean(r.QuestionId), name)
	filename := filepath.Join(d.Root, rel)

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	n, err := io.Copy(f, &reader{ctx: ctx, r: r.Body})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filename)
		return nil, err
	}

	ref := &core.FileRef{
		Name: r.Filename,
		Size: n,
	}
	if d.BaseURL != "" {
		ref.URL = strings.TrimSuffix(d.BaseURL, "/") + "/" + filepath.ToSlash(rel)
	} else {
		abs, err := filepath.Abs(filename)
		if err != nil {
			return nil, err
		}
		ref.URL = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}

	return ref, nil
}

// reader stops reading when its context is done.
type reader struct {
	ctx context.Context
	r   io.Reader
}

func (r *reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
