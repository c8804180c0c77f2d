// Package bolt is a storage.Store (and a persist.Sink) backed by a
// BoltDB file.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/persist"
	"github.com/Comcast/formflow/session"
	"github.com/Comcast/formflow/storage"

	bolt "go.etcd.io/bbolt"
)

var (
	checkpoints = []byte("checkpoints")
	responses   = []byte("responses")

	NotOpen = errors.New("storage not open")
)

func JS(x interface{}) string {
	js, err := json.Marshal(&x)
	if err != nil {
		return err.Error()
	}
	return string(js)
}

// Storage keeps checkpoints in the "checkpoints" bucket (one nested
// bucket per scope, keyed by form id) and a merged response record
// per session in the "responses" bucket.
type Storage struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

func NewStorage(filename string) (*Storage, error) {
	return &Storage{
		filename: filename,
	}, nil
}

func (s *Storage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{checkpoints, responses} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("BoltDB Storage."+format, args...)
	}
}

func (s *Storage) GetCheckpoint(ctx context.Context, scope, formId string) (*session.Checkpoint, error) {
	s.logf("GetCheckpoint %s %s", scope, formId)
	if s.db == nil {
		return nil, NotOpen
	}
	var js []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(checkpoints).Bucket([]byte(scope))
		if b == nil {
			return nil
		}
		if bs := b.Get([]byte(formId)); bs != nil {
			// Only valid during the transaction.
			js = append([]byte(nil), bs...)
		}
		return nil
	})
	if err != nil || js == nil {
		return nil, err
	}
	return storage.Decode(js)
}

func (s *Storage) WriteCheckpoint(ctx context.Context, scope string, c *session.Checkpoint) error {
	s.logf("WriteCheckpoint %s %s", scope, JS(c))
	if s.db == nil {
		return NotOpen
	}
	js, err := storage.Encode(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(checkpoints).CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return err
		}
		return b.Put([]byte(c.FormId), js)
	})
}

func (s *Storage) RemCheckpoint(ctx context.Context, scope, formId string) error {
	s.logf("RemCheckpoint %s %s", scope, formId)
	if s.db == nil {
		return NotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(checkpoints).Bucket([]byte(scope))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(formId))
	})
}

// Responses is the merged view of a session's Records.
type Responses struct {
	SessionId string         `json:"sessionId"`
	FormId    string         `json:"formId"`
	Responses core.Responses `json:"responses"`
	Status    string         `json:"status"`
	TestMode  bool           `json:"testMode"`
	Updated   string         `json:"updated"`
}

// Save implements persist.Sink.  A partial Record is merged into the
// session's Responses, and a final Record replaces them.
func (s *Storage) Save(ctx context.Context, r *persist.Record) error {
	s.logf("Save %s %s %s", r.SessionId, r.Status, r.QuestionId)
	if s.db == nil {
		return NotOpen
	}
	key := []byte(r.SessionId)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(responses)

		rs := &Responses{
			SessionId: r.SessionId,
			FormId:    r.FormId,
			Responses: core.NewResponses(),
			Status:    persist.StatusInProgress,
		}

		if r.IsPartial {
			if bs := b.Get(key); bs != nil {
				if err := json.Unmarshal(bs, rs); err != nil {
					return err
				}
				if rs.Responses == nil {
					rs.Responses = core.NewResponses()
				}
			}
			rs.Responses[r.QuestionId] = r.Value
		} else {
			rs.Responses = r.AllResponses
			rs.Status = persist.StatusCompleted
		}
		if r.FormId != "" {
			rs.FormId = r.FormId
		}
		rs.TestMode = r.TestMode
		rs.Updated = r.Timestamp

		js, err := json.Marshal(rs)
		if err != nil {
			return err
		}
		return b.Put(key, js)
	})
}

// GetResponses returns the merged Records for the session (or nil).
func (s *Storage) GetResponses(ctx context.Context, sessionId string) (*Responses, error) {
	if s.db == nil {
		return nil, NotOpen
	}
	var rs *Responses
	err := s.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(responses).Get([]byte(sessionId))
		if bs == nil {
			return nil
		}
		rs = &Responses{}
		return json.Unmarshal(bs, rs)
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}
