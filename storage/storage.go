// Package storage has durable homes for session checkpoints.
//
// A Store holds checkpoints for many respondents.  Each respondent
// gets a scope (a client id, a device id, or whatever), and Scope
// turns a Store into the session.Continuity for one scope.
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Comcast/formflow/session"
)

// Store is a persistence interface for Checkpoints.
type Store interface {
	// GetCheckpoint returns nil (and no error) if there isn't a
	// Checkpoint for the scope and form.
	GetCheckpoint(ctx context.Context, scope, formId string) (*session.Checkpoint, error)

	WriteCheckpoint(ctx context.Context, scope string, c *session.Checkpoint) error

	RemCheckpoint(ctx context.Context, scope, formId string) error
}

// Scope returns the session.Continuity for the given scope.
func Scope(s Store, scope string) session.Continuity {
	return &scoped{
		store: s,
		scope: scope,
	}
}

type scoped struct {
	store Store
	scope string
}

func (s *scoped) Load(ctx context.Context, formId string) (*session.Checkpoint, error) {
	return s.store.GetCheckpoint(ctx, s.scope, formId)
}

func (s *scoped) Save(ctx context.Context, c *session.Checkpoint) error {
	return s.store.WriteCheckpoint(ctx, s.scope, c)
}

func (s *scoped) Remove(ctx context.Context, formId string) error {
	return s.store.RemCheckpoint(ctx, s.scope, formId)
}

// BadCheckpoint occurs when a Checkpoint can't be stored.
var BadCheckpoint = errors.New("checkpoint without a form id")

// Encode serializes a Checkpoint.
func Encode(c *session.Checkpoint) ([]byte, error) {
	if c == nil || c.FormId == "" {
		return nil, BadCheckpoint
	}
	return json.Marshal(c)
}

// Decode is the inverse of Encode.
func Decode(js []byte) (*session.Checkpoint, error) {
	var c session.Checkpoint
	if err := json.Unmarshal(js, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
