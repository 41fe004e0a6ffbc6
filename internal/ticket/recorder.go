package ticket

import (
	"context"
	"sync"
)

// Call is one request captured by Recorder.
type Call struct {
	Op    string // create, assign, comment, close
	ID    int64
	Group string
	Text  string
	Req   CreateRequest
}

// Recorder is an in-memory Client that remembers every call. It backs the
// dry-run mode of the CLI and the lifecycle tests.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	nextID int64

	// Err, when set, is returned from every call.
	Err error
}

var _ Client = (*Recorder)(nil)

// NewRecorder returns a Recorder whose first ticket id is first.
func NewRecorder(first int64) *Recorder {
	return &Recorder{nextID: first}
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.calls = append(r.calls, c)
	return nil
}

func (r *Recorder) Create(_ context.Context, req CreateRequest) (int64, error) {
	r.mu.Lock()
	if r.Err != nil {
		r.mu.Unlock()
		return 0, r.Err
	}
	id := r.nextID
	r.nextID++
	r.calls = append(r.calls, Call{Op: "create", ID: id, Text: req.Body, Req: req})
	r.mu.Unlock()
	return id, nil
}

func (r *Recorder) AssignGroup(_ context.Context, id int64, group string, fields Fields) error {
	return r.record(Call{Op: "assign", ID: id, Group: group, Req: CreateRequest{Fields: fields}})
}

func (r *Recorder) AddComment(_ context.Context, id int64, text string) error {
	return r.record(Call{Op: "comment", ID: id, Text: text})
}

func (r *Recorder) Close(_ context.Context, id int64, text string) error {
	return r.record(Call{Op: "close", ID: id, Text: text})
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ops returns the operations of the recorded calls, optionally filtered.
func (r *Recorder) Ops(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
