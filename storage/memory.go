package storage

import (
	"context"
	"sync"

	"github.com/Comcast/formflow/session"
)

// Memory is an in-memory Store.  Checkpoints are stored encoded, so
// nothing is shared with callers.
type Memory struct {
	sync.Mutex
	scopes map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		scopes: make(map[string]map[string][]byte),
	}
}

func (m *Memory) GetCheckpoint(ctx context.Context, scope, formId string) (*session.Checkpoint, error) {
	m.Lock()
	js, have := m.scopes[scope][formId]
	m.Unlock()
	if !have {
		return nil, nil
	}
	return Decode(js)
}

func (m *Memory) WriteCheckpoint(ctx context.Context, scope string, c *session.Checkpoint) error {
	js, err := Encode(c)
	if err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	if m.scopes == nil {
		m.scopes = make(map[string]map[string][]byte)
	}
	forms, have := m.scopes[scope]
	if !have {
		forms = make(map[string][]byte)
		m.scopes[scope] = forms
	}
	forms[c.FormId] = js
	return nil
}

func (m *Memory) RemCheckpoint(ctx context.Context, scope, formId string) error {
	m.Lock()
	defer m.Unlock()
	if forms, have := m.scopes[scope]; have {
		delete(forms, formId)
		if len(forms) == 0 {
			delete(m.scopes, scope)
		}
	}
	return nil
}
