package tally

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"tally-node/internal/domain"
)

// formsPage is one page of GET /forms. Older API versions answer with a bare
// array instead.
type formsPage struct {
	Items   []domain.Form `json:"items"`
	Page    int           `json:"page"`
	HasMore bool          `json:"hasMore"`
}

// ListForms returns every form of the workspace, following pagination up to
// the configured page limit.
func (c *Client) ListForms(ctx context.Context) ([]domain.Form, error) {
	var all []domain.Form
	for page := 1; page <= c.maxPages; page++ {
		var raw json.RawMessage
		if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/forms?page=%d", page), nil, &raw); err != nil {
			return nil, err
		}

		var forms []domain.Form
		if json.Unmarshal(raw, &forms) == nil {
			return append(all, forms...), nil
		}
		var p formsPage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode forms page %d: %w", page, err)
		}
		all = append(all, p.Items...)
		if !p.HasMore || len(p.Items) == 0 {
			return all, nil
		}
	}
	c.logger.Warn("forms listing truncated", "max_pages", c.maxPages)
	return all, nil
}

// GetForm fetches one form with its blocks.
func (c *Client) GetForm(ctx context.Context, formID string) (*domain.Form, error) {
	var f domain.Form
	if err := c.Do(ctx, http.MethodGet, formPath(formID), nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// UpdateForm PATCHes the form's blocks, name and settings and returns the
// form as stored.
func (c *Client) UpdateForm(ctx context.Context, formID string, update domain.FormUpdate) (*domain.Form, error) {
	var f domain.Form
	if err := c.Do(ctx, http.MethodPatch, formPath(formID), update, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateForm POSTs a new form.
func (c *Client) CreateForm(ctx context.Context, create domain.FormUpdate) (*domain.Form, error) {
	var f domain.Form
	if err := c.Do(ctx, http.MethodPost, "/forms", create, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListQuestions returns the question listing of a form. The endpoint answers
// with {items}, {questions} or a bare array depending on the API version.
func (c *Client) ListQuestions(ctx context.Context, formID string) ([]domain.Question, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, formPath(formID)+"/questions", nil, &raw); err != nil {
		return nil, err
	}
	return decodeQuestions(raw)
}

func decodeQuestions(raw json.RawMessage) ([]domain.Question, error) {
	var list []domain.Question
	if json.Unmarshal(raw, &list) == nil {
		return list, nil
	}
	var wrapped struct {
		Items     []domain.Question `json:"items"`
		Questions []domain.Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	if wrapped.Questions != nil {
		return wrapped.Questions, nil
	}
	return []domain.Question{}, nil
}

// ListSubmissions returns the raw submissions response; its shape varies and
// is normalized by the caller.
func (c *Client) ListSubmissions(ctx context.Context, formID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, SubmissionsPath(formID), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// SubmissionsPath is the submissions endpoint of a form.
func SubmissionsPath(formID string) string {
	return formPath(formID) + "/submissions"
}

func formPath(formID string) string {
	return "/forms/" + url.PathEscape(formID)
}
