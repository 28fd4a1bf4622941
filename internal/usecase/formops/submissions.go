package formops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SubmissionsRequest lists the submissions of a form.
type SubmissionsRequest struct {
	FormID string
	// Flatten turns each submission into a FlatSubmission keyed by field
	// label, using the form's field listing when the response carries one.
	Flatten bool
}

// GetAllSubmissions returns one record per submission. Responses that are
// not a list (or a wrapper around one) yield a single diagnostic record; an
// empty list yields a single message record.
func (s *Service) GetAllSubmissions(ctx context.Context, req SubmissionsRequest) (records []any, err error) {
	const op = "get_all_submissions"
	ctx, end := s.startOp(ctx, op, req.FormID, Flags{})
	defer end(&err)

	if err := requireFormID(op, req.FormID); err != nil {
		return nil, err
	}
	raw, err := s.api.ListSubmissions(ctx, req.FormID)
	if err != nil {
		return nil, err
	}

	subs, form, ok := NormalizeSubmissions(raw)
	if !ok {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			decoded = string(raw)
		}
		return []any{map[string]any{
			"rawResponse": decoded,
			"note":        "Non-array response from submissions API",
			"endpoint":    "/forms/" + req.FormID + "/submissions",
		}}, nil
	}
	if len(subs) == 0 {
		return []any{map[string]any{
			"message": "No submissions found for this form",
			"formId":  req.FormID,
		}}, nil
	}

	records = make([]any, 0, len(subs))
	for _, sub := range subs {
		if req.Flatten {
			records = append(records, FlattenSubmission(sub, form))
		} else {
			records = append(records, sub)
		}
	}
	s.logger.Debug("submissions fetched", "form_id", req.FormID, "count", len(records))
	return records, nil
}

// NormalizeSubmissions extracts the submission list from a response that is
// an array or an object with an items, data or submissions array. A sibling
// "form" or "questions" entry is returned for flattening. ok is false for any
// other shape; an empty body is an empty list.
func NormalizeSubmissions(raw json.RawMessage) (subs []map[string]any, form map[string]any, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil, true
	}

	var list []map[string]any
	if json.Unmarshal(raw, &list) == nil {
		return list, nil, true
	}

	var obj map[string]any
	if json.Unmarshal(raw, &obj) != nil {
		return nil, nil, false
	}
	for _, key := range []string{"items", "data", "submissions"} {
		arr, isArr := obj[key].([]any)
		if !isArr {
			continue
		}
		out := make([]map[string]any, 0, len(arr))
		for _, e := range arr {
			if m, isMap := e.(map[string]any); isMap {
				out = append(out, m)
			}
		}
		return out, formContext(obj), true
	}
	return nil, nil, false
}

// formContext builds the field listing FlattenSubmission labels answers by.
// Tally returns the questions next to the submissions; an explicit form
// object with fields takes precedence.
func formContext(obj map[string]any) map[string]any {
	if f, ok := obj["form"].(map[string]any); ok {
		if _, has := f["fields"]; has {
			return f
		}
	}
	if qs, ok := obj["questions"].([]any); ok {
		fields := make([]any, 0, len(qs))
		for _, q := range qs {
			m, ok := q.(map[string]any)
			if !ok {
				continue
			}
			label, _ := m["title"].(string)
			if l, ok := m["label"].(string); ok && l != "" {
				label = l
			}
			fields = append(fields, map[string]any{"id": m["id"], "label": label})
		}
		return map[string]any{"fields": fields}
	}
	return nil
}

// FlatSubmission is a submission reduced to a flat answer map.
type FlatSubmission struct {
	SubmissionID any            `json:"submissionId"`
	CreatedAt    any            `json:"createdAt"`
	Answers      map[string]any `json:"answers"`
	Raw          map[string]any `json:"_raw"`
}

var nonKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// FlattenSubmission keys each answer by the form field's label (from
// form.fields), else the answer's question, else its field id, else field_N,
// then replaces non-word characters with underscores and lower-cases it.
func FlattenSubmission(sub map[string]any, form map[string]any) FlatSubmission {
	out := FlatSubmission{
		SubmissionID: sub["id"],
		CreatedAt:    sub["createdAt"],
		Answers:      map[string]any{},
		Raw:          sub,
	}

	fieldMap := map[string]string{}
	if fields, ok := form["fields"].([]any); ok {
		for _, f := range fields {
			m, ok := f.(map[string]any)
			if !ok {
				continue
			}
			id := stringOf(m["id"])
			if id == "" {
				continue
			}
			label := stringOf(m["label"])
			if label == "" {
				label = id
			}
			fieldMap[id] = label
		}
	}

	answers, _ := sub["answers"].([]any)
	for _, a := range answers {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		fieldID := stringOf(m["fieldId"])
		key := fieldMap[fieldID]
		if key == "" {
			key = stringOf(m["question"])
		}
		if key == "" {
			key = fieldID
		}
		if key == "" {
			key = fmt.Sprintf("field_%d", len(out.Answers))
		}
		key = strings.ToLower(nonKeyChars.ReplaceAllString(key, "_"))
		out.Answers[key] = m["value"]
	}
	return out
}

var (
	nameStrip = regexp.MustCompile(`[^a-zA-Z0-9_\s]`)
	nameSpace = regexp.MustCompile(`\s+`)
)

// SanitizeFieldName turns a label into an object key: punctuation removed,
// whitespace runs replaced by one underscore, lower-cased.
func SanitizeFieldName(name string) string {
	name = nameStrip.ReplaceAllString(name, "")
	name = nameSpace.ReplaceAllString(name, "_")
	return strings.ToLower(name)
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
