package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

// newMockTicketServer creates a test HTTP server that mimics the ticket API.
func newMockTicketServer(t *testing.T) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest

	record := func(r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		requests = append(requests, rec)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tickets/", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 4242}`))
	})
	mux.HandleFunc("POST /api/tickets/{id}/{action}/", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.PathValue("id") == "404" {
			http.Error(w, "no such ticket", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestRESTClient_Create(t *testing.T) {
	srv, reqs := newMockTicketServer(t)
	c := NewRESTClient(srv.URL+"/", "secret", time.Second)

	id, err := c.Create(context.Background(), CreateRequest{
		Queue: "hpc",
		Title: "cluster1: Bad Cable r1i0s0 SW0/P3 <--> r1i0s0 SW1/P3",
		Body:  "added",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4242), id)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, "/api/tickets/", got.Path)
	assert.Equal(t, "Token secret", got.Auth)
	assert.Equal(t, "hpc", got.Body["queue"])
	assert.NotContains(t, got.Body, "assignee")
}

func TestRESTClient_Actions(t *testing.T) {
	srv, reqs := newMockTicketServer(t)
	c := NewRESTClient(srv.URL, "secret", 0)
	ctx := context.Background()

	require.NoError(t, c.AddComment(ctx, 7, "hello"))
	require.NoError(t, c.AssignGroup(ctx, 7, "repair", Fields{"count": "2"}))
	require.NoError(t, c.Close(ctx, 7, "bye"))

	paths := make([]string, 0, len(*reqs))
	for _, r := range *reqs {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{
		"/api/tickets/7/comments/",
		"/api/tickets/7/assign/",
		"/api/tickets/7/close/",
	}, paths)
	assert.Equal(t, "hello", (*reqs)[0].Body["text"])
	assert.Equal(t, "repair", (*reqs)[1].Body["group"])
}

func TestRESTClient_ErrorStatus(t *testing.T) {
	srv, _ := newMockTicketServer(t)
	c := NewRESTClient(srv.URL, "secret", time.Second)

	err := c.AddComment(context.Background(), 404, "hello")
	require.Error(t, err)
	if !strings.Contains(err.Error(), "returned 404") {
		t.Errorf("error = %q, want status code in message", err)
	}
}

func TestNew_disabled(t *testing.T) {
	if _, ok := New(Config{URL: "http://x"}, true, nil).(Nop); !ok {
		t.Error("disabled config should return Nop")
	}
	if _, ok := New(Config{}, false, nil).(Nop); !ok {
		t.Error("empty URL should return Nop")
	}
	if _, ok := New(Config{URL: "http://x"}, false, nil).(*RESTClient); !ok {
		t.Error("configured URL should return RESTClient")
	}

	id, err := Nop{}.Create(context.Background(), CreateRequest{Title: "t"})
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(100)
	ctx := context.Background()

	id, err := r.Create(ctx, CreateRequest{Title: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), id)
	require.NoError(t, r.AddComment(ctx, id, "c"))
	assert.Len(t, r.Ops("comment"), 1)
	assert.Len(t, r.Ops(""), 2)

	r.Err = errors.New("down")
	_, err = r.Create(ctx, CreateRequest{})
	assert.Error(t, err)
}
