package formops

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"tally-node/internal/domain"
)

// fakeAPI is an in-memory FormAPI. Each method can be failed through its
// error field; getHook runs on every GetForm and may mutate the stored form.
type fakeAPI struct {
	mu sync.Mutex

	forms       map[string]*domain.Form
	questions   map[string][]domain.Question
	submissions map[string]json.RawMessage

	getErr, updateErr, createErr, listQErr, listSubErr error

	getHook func(call int, f *domain.Form)

	getCalls   int
	listQCalls int
	updates    []fakeWrite
	creates    []domain.FormUpdate
}

type fakeWrite struct {
	formID string
	update domain.FormUpdate
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		forms:       make(map[string]*domain.Form),
		questions:   make(map[string][]domain.Question),
		submissions: make(map[string]json.RawMessage),
	}
}

func (f *fakeAPI) put(form domain.Form) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := form.Clone()
	f.forms[form.ID] = &c
}

func (f *fakeAPI) ListForms(context.Context) ([]domain.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Form
	for _, form := range f.forms {
		out = append(out, form.Clone())
	}
	return out, nil
}

func (f *fakeAPI) GetForm(_ context.Context, id string) (*domain.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	form, ok := f.forms[id]
	if !ok {
		return nil, &domain.APIError{StatusCode: 404, Message: "Form not found", Description: "Not Found", Method: "GET", Path: "/forms/" + id}
	}
	if f.getHook != nil {
		f.getHook(f.getCalls, form)
	}
	c := form.Clone()
	return &c, nil
}

func (f *fakeAPI) UpdateForm(_ context.Context, id string, u domain.FormUpdate) (*domain.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, fakeWrite{formID: id, update: u})
	form := f.forms[id]
	form.Blocks = u.Blocks
	form.Name = u.Name
	form.Settings = u.Settings
	form.UpdatedAt = "updated"
	c := form.Clone()
	return &c, nil
}

func (f *fakeAPI) CreateForm(_ context.Context, u domain.FormUpdate) (*domain.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.creates = append(f.creates, u)
	return &domain.Form{ID: "created1", Name: u.Name, Settings: u.Settings, Blocks: u.Blocks}, nil
}

func (f *fakeAPI) ListQuestions(_ context.Context, id string) ([]domain.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listQCalls++
	if f.listQErr != nil {
		return nil, f.listQErr
	}
	return f.questions[id], nil
}

func (f *fakeAPI) ListSubmissions(_ context.Context, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listSubErr != nil {
		return nil, f.listSubErr
	}
	return f.submissions[id], nil
}

var _ FormAPI = (*fakeAPI)(nil)

// recordingAudit collects audit events.
type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (r *recordingAudit) Log(_ context.Context, e domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingAudit) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// threeBlockForm is a form with a title, a text field and a rating field.
func threeBlockForm() domain.Form {
	return domain.Form{
		ID:        "f1",
		Name:      "Survey",
		Settings:  map[string]any{"language": "en"},
		UpdatedAt: "t1",
		Blocks: []domain.Block{
			{UUID: "t1", Type: "TITLE", GroupUUID: "gt", GroupType: "QUESTION", Payload: domain.Payload{"safeHTMLSchema": []any{[]any{"Your name"}}}},
			{UUID: "q1", Type: "INPUT_TEXT", Label: "Name", GroupUUID: "g1", GroupType: "INPUT_TEXT", Payload: domain.Payload{"isRequired": false}},
			{UUID: "r1", Type: "RATING", Label: "Score", GroupUUID: "g2", GroupType: "RATING"},
		},
	}
}

func newTestService(t *testing.T, forms ...domain.Form) (*Service, *fakeAPI, *recordingAudit) {
	t.Helper()
	api := newFakeAPI()
	for _, f := range forms {
		api.put(f)
	}
	audit := &recordingAudit{}
	return NewService(api, discardLogger(), WithAudit(audit)), api, audit
}

func commitFlags() Flags { return Flags{Backup: true, Optimistic: true} }
