package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"tally-node/internal/domain"
)

// RequireField returns an error if the string value is empty.
func RequireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.NewValidationError("tool.RequireField", fmt.Sprintf("'%s' is required", name))
	}
	return nil
}

// RequireFields validates multiple required string fields at once.
// keys and values must have the same length.
func RequireFields(kvs ...string) error {
	if len(kvs)%2 != 0 {
		return fmt.Errorf("RequireFields: odd number of arguments")
	}
	for i := 0; i < len(kvs); i += 2 {
		if err := RequireField(kvs[i], kvs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEnum checks that value is one of the allowed values.
// An empty value is allowed (treated as "not set").
func ValidateEnum(name, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return domain.NewValidationError("tool.ValidateEnum",
		fmt.Sprintf("invalid %s %q (want: %s)", name, value, joinComma(allowed)))
}

// ValidateAll returns the first non-nil error from the given list.
// Useful for combining multiple validation checks:
//
//	if err := ValidateAll(RequireField("form_id", p.FormID), ValidateEnum("strategy", p.Strategy, "merge", "replace")); err != nil { ... }
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// DecodeJSONParam decodes a JSON-typed parameter into out. The parameter may
// be the JSON value itself or a string holding it, as hosts deliver values
// typed into a JSON field. Absent, null and blank values leave out untouched
// and report false.
func DecodeJSONParam(name string, raw json.RawMessage, out any) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false, invalidJSON(name, err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return false, nil
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, invalidJSON(name, err)
	}
	return true, nil
}

func invalidJSON(name string, err error) error {
	return domain.NewValidationError("tool.DecodeJSONParam",
		fmt.Sprintf("%s is not valid JSON: %v", name, err))
}
