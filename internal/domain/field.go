package domain

import (
	"fmt"
	"strings"
)

// FieldKind is the closed set of field kinds the add-field operation builds.
type FieldKind string

const (
	FieldInput       FieldKind = "input"
	FieldTextarea    FieldKind = "textarea"
	FieldEmail       FieldKind = "email"
	FieldURL         FieldKind = "url"
	FieldPhone       FieldKind = "phone"
	FieldNumber      FieldKind = "number"
	FieldSelect      FieldKind = "select"
	FieldRadio       FieldKind = "radio"
	FieldCheckboxes  FieldKind = "checkboxes"
	FieldMultiSelect FieldKind = "multi_select"
	FieldDate        FieldKind = "date"
	FieldTime        FieldKind = "time"
	FieldRating      FieldKind = "rating"
	FieldFileUpload  FieldKind = "file_upload"
	FieldCustom      FieldKind = "custom"
)

// Raw Tally block types.
const (
	TypeInputText   = "INPUT_TEXT"
	TypeTextarea    = "TEXTAREA"
	TypeInputEmail  = "INPUT_EMAIL"
	TypeInputLink   = "INPUT_LINK"
	TypeInputPhone  = "INPUT_PHONE_NUMBER"
	TypeInputNumber = "INPUT_NUMBER"
	TypeSelect      = "SELECT"
	TypeRadio       = "RADIO"
	TypeCheckboxes  = "CHECKBOXES"
	TypeMultiSelect = "MULTI_SELECT"
	TypeInputDate   = "INPUT_DATE"
	TypeInputTime   = "INPUT_TIME"
	TypeRating      = "RATING"
	TypeFileUpload  = "FILE_UPLOAD"
)

// fieldSpec is the mapping row for one field kind.
type fieldSpec struct {
	rawType    string
	groupType  string // choice kinds only
	optionType string // choice kinds only
	textLike   bool   // gets a placeholder default
}

var fieldSpecs = map[FieldKind]fieldSpec{
	FieldInput:       {rawType: TypeInputText, textLike: true},
	FieldTextarea:    {rawType: TypeTextarea, textLike: true},
	FieldEmail:       {rawType: TypeInputEmail, textLike: true},
	FieldURL:         {rawType: TypeInputLink, textLike: true},
	FieldPhone:       {rawType: TypeInputPhone, textLike: true},
	FieldNumber:      {rawType: TypeInputNumber, textLike: true},
	FieldDate:        {rawType: TypeInputDate, textLike: true},
	FieldTime:        {rawType: TypeInputTime, textLike: true},
	FieldRating:      {rawType: TypeRating},
	FieldFileUpload:  {rawType: TypeFileUpload},
	FieldSelect:      {rawType: TypeSelect, groupType: "DROPDOWN", optionType: "DROPDOWN_OPTION"},
	FieldRadio:       {rawType: TypeRadio, groupType: "MULTIPLE_CHOICE", optionType: "MULTIPLE_CHOICE_OPTION"},
	FieldCheckboxes:  {rawType: TypeCheckboxes, groupType: "CHECKBOXES", optionType: "CHECKBOX"},
	FieldMultiSelect: {rawType: TypeMultiSelect, groupType: "MULTI_SELECT", optionType: "MULTI_SELECT_OPTION"},
}

var kindByRawType = func() map[string]FieldKind {
	m := make(map[string]FieldKind, len(fieldSpecs))
	for k, spec := range fieldSpecs {
		m[spec.rawType] = k
	}
	return m
}()

// textLikeTypes receive isRequired/placeholder defaults in new block templates.
var textLikeTypes = map[string]bool{
	TypeInputText:   true,
	TypeInputEmail:  true,
	TypeTextarea:    true,
	TypeInputPhone:  true,
	TypeInputLink:   true,
	TypeInputNumber: true,
	TypeInputDate:   true,
	TypeInputTime:   true,
}

// IsTextLikeType reports whether raw block type t is a text-style input.
func IsTextLikeType(t string) bool { return textLikeTypes[t] }

// ParseFieldKind validates a field kind name. The empty string means input.
func ParseFieldKind(s string) (FieldKind, error) {
	k := FieldKind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return FieldInput, nil
	}
	if k == FieldCustom {
		return k, nil
	}
	if _, ok := fieldSpecs[k]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown field type %q", s)
}

// Resolve returns the effective kind and Tally block type. For custom, the
// caller value is looked up as a kind name ("select" → SELECT), otherwise
// upper-cased ("TEXT" when empty); a value naming a known block type
// resolves to that type's kind so choice and payload rules still apply.
func (k FieldKind) Resolve(custom string) (FieldKind, string) {
	if k != FieldCustom {
		return k, fieldSpecs[k].rawType
	}
	c := strings.TrimSpace(custom)
	if c == "" {
		c = "TEXT"
	}
	if spec, ok := fieldSpecs[FieldKind(c)]; ok {
		return FieldKind(c), spec.rawType
	}
	raw := strings.ToUpper(c)
	if kind, ok := kindByRawType[raw]; ok {
		return kind, raw
	}
	return FieldCustom, raw
}

// RawType maps the kind to Tally's block type. See Resolve for custom.
func (k FieldKind) RawType(custom string) string {
	_, raw := k.Resolve(custom)
	return raw
}

// IsChoice reports whether the kind is rendered as an option group.
func (k FieldKind) IsChoice() bool { return fieldSpecs[k].optionType != "" }

// GroupType is the group type shared by a choice field's option blocks.
func (k FieldKind) GroupType() string { return fieldSpecs[k].groupType }

// OptionType is the block type of each option of a choice field.
func (k FieldKind) OptionType() string { return fieldSpecs[k].optionType }

// DefaultPayload builds the payload defaults for a non-choice field.
// Text-like kinds get a placeholder (falling back to the label); phone
// fields also disable international formatting.
func (k FieldKind) DefaultPayload(required bool, placeholder, label string) Payload {
	p := Payload{"isRequired": required}
	if fieldSpecs[k].textLike {
		ph := strings.TrimSpace(placeholder)
		if ph == "" {
			ph = strings.TrimSpace(label)
		}
		p["placeholder"] = ph
	}
	if k == FieldPhone {
		p["internationalFormat"] = false
	}
	return p
}
