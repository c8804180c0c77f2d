package drivers

import (
	"context"
	"io"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/session"
	"github.com/Comcast/formflow/upload"
)

// Upload runs the file-upload protocol for the question: record
// core.UploadPending, upload, and then record either the
// core.FileRef or core.UploadFailed.
func Upload(ctx context.Context, e *session.Engine, u upload.Uploader, questionId, filename string, body io.Reader) (*core.FileRef, error) {
	if err := e.RecordAnswer(ctx, questionId, core.UploadPending{}); err != nil {
		return nil, err
	}

	ref, err := u.Upload(ctx, &upload.Request{
		FormId:     e.FormId(),
		SessionId:  e.SessionId(),
		QuestionId: questionId,
		Filename:   filename,
		Body:       body,
	})
	if err != nil {
		e.RecordAnswer(ctx, questionId, core.UploadFailed{Err: err})
		return nil, err
	}

	if err = e.RecordAnswer(ctx, questionId, ref); err != nil {
		return nil, err
	}
	return ref, nil
}
