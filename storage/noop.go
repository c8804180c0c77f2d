package storage

import (
	"context"

	"github.com/Comcast/formflow/session"
)

// Noop is a Store that remembers nothing.
type Noop struct {
}

func (s *Noop) GetCheckpoint(ctx context.Context, scope, formId string) (*session.Checkpoint, error) {
	return nil, nil
}

func (s *Noop) WriteCheckpoint(ctx context.Context, scope string, c *session.Checkpoint) error {
	return nil
}

func (s *Noop) RemCheckpoint(ctx context.Context, scope, formId string) error {
	return nil
}
