package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Comcast/formflow/persist"

	"github.com/stretchr/testify/require"
)

func TestSave(t *testing.T) {
	var (
		mu       sync.Mutex
		got      []*persist.Record
		cookies  []string
		failNext bool
	)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		if c, err := r.Cookie("affinity"); err == nil {
			cookies = append(cookies, c.Value)
		}
		http.SetCookie(w, &http.Cookie{Name: "affinity", Value: "node7", Path: "/"})

		var rec persist.Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		got = append(got, &rec)

		if failNext {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"ignored":true}`))
	}))
	defer ts.Close()

	s, err := NewSink(ts.URL + "/responses")
	require.NoError(t, err)
	s.Headers.Set("X-Api-Key", "secret")

	ctx := context.Background()
	rec := &persist.Record{
		SessionId:  "s1",
		FormId:     "f",
		QuestionId: "Q1",
		Value:      "a",
		IsPartial:  true,
		Status:     persist.StatusInProgress,
	}
	require.NoError(t, s.Save(ctx, rec))
	require.NoError(t, s.Save(ctx, rec))

	mu.Lock()
	failNext = true
	mu.Unlock()

	err = s.Save(ctx, rec)
	require.Error(t, err)
	se, is := err.(*StatusError)
	require.True(t, is)
	require.Equal(t, http.StatusServiceUnavailable, se.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	require.Equal(t, "Q1", got[0].QuestionId)
	require.Equal(t, "a", got[0].Value)
	require.True(t, got[0].IsPartial)
	require.Equal(t, []string{"node7", "node7"}, cookies)
}

func TestSaveUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	s, err := NewSink(url)
	require.NoError(t, err)
	require.Error(t, s.Save(context.Background(), &persist.Record{SessionId: "s"}))
}
