package tally

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally-node/internal/domain"
	"tally-node/internal/infra/config"
)

func TestListFormsPaginates(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms", r.URL.Path)
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		switch page {
		case "1":
			io.WriteString(w, `{"items":[{"id":"a","name":"A"},{"id":"b","name":"B"}],"page":1,"hasMore":true}`)
		case "2":
			io.WriteString(w, `{"items":[{"id":"c","name":"C"}],"page":2,"hasMore":false}`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	}))
	defer srv.Close()

	forms, err := newTestClient(t, srv).ListForms(context.Background())
	require.NoError(t, err)
	require.Len(t, forms, 3)
	assert.Equal(t, []string{"1", "2"}, pages)
	assert.Equal(t, "C", forms[2].Name)
}

func TestListFormsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":"a"},{"id":"b"}]`)
	}))
	defer srv.Close()

	forms, err := newTestClient(t, srv).ListForms(context.Background())
	require.NoError(t, err)
	assert.Len(t, forms, 2)
}

func TestListFormsStopsAtMaxPages(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, `{"items":[{"id":"f%d"}],"hasMore":true}`, calls)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *config.TallyConfig) { cfg.MaxPages = 3 })
	forms, err := c.ListForms(context.Background())
	require.NoError(t, err)
	assert.Len(t, forms, 3)
	assert.Equal(t, 3, calls)
}

func TestGetFormKeepsUnknownKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/wMx1", r.URL.Path)
		io.WriteString(w, `{"id":"wMx1","name":"Survey","status":"PUBLISHED","updatedAt":"2026-01-01T00:00:00Z",
			"blocks":[{"uuid":"q1","type":"INPUT_TEXT","groupUuid":"g1","payload":{"isRequired":true},"x":1}]}`)
	}))
	defer srv.Close()

	f, err := newTestClient(t, srv).GetForm(context.Background(), "wMx1")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00Z", f.UpdatedAt)
	require.Len(t, f.Blocks, 1)
	assert.Equal(t, json.RawMessage(`1`), f.Blocks[0].Extra["x"])
	assert.JSONEq(t, `"PUBLISHED"`, string(f.Extra["status"]))
}

func TestGetFormEscapesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/a%2Fb", r.URL.EscapedPath())
		io.WriteString(w, `{"id":"a/b"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetForm(context.Background(), "a/b")
	require.NoError(t, err)
}

func TestUpdateAndCreateForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch {
		case r.Method == http.MethodPatch && r.URL.Path == "/forms/f1":
			assert.Equal(t, "Kept", body["name"])
			assert.Len(t, body["blocks"], 1)
			io.WriteString(w, `{"id":"f1","name":"Kept","updatedAt":"t2"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/forms":
			assert.Equal(t, map[string]any{}, body["settings"].(map[string]any))
			io.WriteString(w, `{"id":"new1","name":"Untitled Form"}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	blocks := []domain.Block{{UUID: "q1", Type: domain.TypeInputText}}

	updated, err := c.UpdateForm(context.Background(), "f1", domain.FormUpdate{Name: "Kept", Blocks: blocks})
	require.NoError(t, err)
	assert.Equal(t, "t2", updated.UpdatedAt)

	created, err := c.CreateForm(context.Background(), domain.FormUpdate{
		Name:     "Untitled Form",
		Settings: map[string]any{},
		Blocks:   blocks,
	})
	require.NoError(t, err)
	assert.Equal(t, "new1", created.ID)
}

func TestListQuestionsShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"items", `{"items":[{"id":"q1","label":"Name"}]}`, 1},
		{"questions", `{"questions":[{"blockUuid":"b1","title":"Email"},{"uuid":"u2"}]}`, 2},
		{"array", `[{"id":"q1"},{"id":"q2"},{"id":"q3"}]`, 3},
		{"unknown object", `{"other":true}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/forms/f1/questions", r.URL.Path)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			qs, err := newTestClient(t, srv).ListQuestions(context.Background(), "f1")
			require.NoError(t, err)
			assert.Len(t, qs, tt.want)
		})
	}
}

func TestListSubmissionsRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/f1/submissions", r.URL.Path)
		io.WriteString(w, `{"data":[{"id":"s1"}]}`)
	}))
	defer srv.Close()

	raw, err := newTestClient(t, srv).ListSubmissions(context.Background(), "f1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"id":"s1"}]}`, string(raw))
	assert.Equal(t, "/forms/f1/submissions", SubmissionsPath("f1"))
}
