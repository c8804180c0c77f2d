// Package mongo is a persist.Sink that keeps one MongoDB document
// per session.
package mongo

import (
	"context"
	"strings"

	"github.com/Comcast/formflow/persist"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Document is the stored form of a session's responses.
type Document struct {
	SessionId string                 `bson:"_id"`
	FormId    string                 `bson:"formId"`
	Responses map[string]interface{} `bson:"responses"`
	Status    string                 `bson:"status"`
	TestMode  bool                   `bson:"testMode"`
	Updated   string                 `bson:"updated"`
}

// Sink upserts a Document for each Record.
//
// A partial Record sets one response in the session's Document.  A
// final Record replaces the whole Document.
type Sink struct {
	Collection *mongo.Collection
}

// NewSink makes a Sink using the given database and collection.
func NewSink(client *mongo.Client, database, collection string) *Sink {
	return &Sink{
		Collection: client.Database(database).Collection(collection),
	}
}

// Connect connects to MongoDB at the given URI.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	return mongo.Connect(ctx, options.Client().ApplyURI(uri))
}

// EscapeKey makes a question id usable as a field name.
func EscapeKey(k string) string {
	k = strings.ReplaceAll(k, ".", "．")
	if strings.HasPrefix(k, "$") {
		k = "＄" + k[1:]
	}
	return k
}

func partialUpdate(r *persist.Record) bson.M {
	set := bson.M{
		"formId":   r.FormId,
		"testMode": r.TestMode,
		"updated":  r.Timestamp,
	}
	set["responses."+EscapeKey(r.QuestionId)] = r.Value

	return bson.M{
		"$set": set,
		// A late partial shouldn't undo completion.
		"$setOnInsert": bson.M{
			"status": persist.StatusInProgress,
		},
	}
}

func finalDocument(r *persist.Record) *Document {
	rs := make(map[string]interface{}, len(r.AllResponses))
	for k, v := range r.AllResponses {
		rs[EscapeKey(k)] = v
	}
	return &Document{
		SessionId: r.SessionId,
		FormId:    r.FormId,
		Responses: rs,
		Status:    persist.StatusCompleted,
		TestMode:  r.TestMode,
		Updated:   r.Timestamp,
	}
}

// Save implements persist.Sink.
func (s *Sink) Save(ctx context.Context, r *persist.Record) error {
	filter := bson.M{"_id": r.SessionId}
	if r.IsPartial {
		_, err := s.Collection.UpdateOne(ctx, filter, partialUpdate(r), options.Update().SetUpsert(true))
		return err
	}
	_, err := s.Collection.ReplaceOne(ctx, filter, finalDocument(r), options.Replace().SetUpsert(true))
	return err
}

// Get returns the Document for the session.
func (s *Sink) Get(ctx context.Context, sessionId string) (*Document, error) {
	var d Document
	if err := s.Collection.FindOne(ctx, bson.M{"_id": sessionId}).Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}
