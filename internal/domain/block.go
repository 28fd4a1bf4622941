package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Block is one element of a form's block sequence: a field, a title, or a
// choice option. Known fields are typed; every other key is kept verbatim in
// Extra so that blocks round-trip without loss.
type Block struct {
	UUID      string
	Type      string
	Label     string
	GroupUUID string
	GroupType string
	Payload   Payload

	// Extra holds keys this package does not model, as raw JSON.
	Extra map[string]json.RawMessage
}

// Block types this module constructs or inspects.
const (
	BlockTypeTitle = "TITLE"

	GroupTypeQuestion = "QUESTION"
)

// GroupKey returns the key blocks are grouped by: the group uuid, or the
// block's own uuid when it has none.
func (b Block) GroupKey() string {
	if b.GroupUUID != "" {
		return b.GroupUUID
	}
	return b.UUID
}

// HasPayload reports whether the block carries a non-empty payload.
func (b Block) HasPayload() bool { return len(b.Payload) > 0 }

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	out := b
	out.Payload = b.Payload.Clone()
	out.Extra = cloneRaw(b.Extra)
	return out
}

var blockKnownKeys = map[string]bool{
	"uuid": true, "type": true, "label": true,
	"groupUuid": true, "groupType": true, "payload": true,
}

// UnmarshalJSON decodes a block, routing unknown keys, known keys with an
// unexpected JSON type, and empty known strings into Extra so they are
// written back as they were read.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode block: %w", err)
	}
	*b = Block{}
	for key, val := range raw {
		if !blockKnownKeys[key] || !b.setKnown(key, val) {
			if b.Extra == nil {
				b.Extra = make(map[string]json.RawMessage)
			}
			b.Extra[key] = append(json.RawMessage(nil), val...)
		}
	}
	return nil
}

func (b *Block) setKnown(key string, val json.RawMessage) bool {
	if isJSONNull(val) {
		return false
	}
	if key == "payload" {
		var p Payload
		if err := json.Unmarshal(val, &p); err != nil {
			return false
		}
		b.Payload = p
		return true
	}
	var s string
	if err := json.Unmarshal(val, &s); err != nil || s == "" {
		return false
	}
	switch key {
	case "uuid":
		b.UUID = s
	case "type":
		b.Type = s
	case "label":
		b.Label = s
	case "groupUuid":
		b.GroupUUID = s
	case "groupType":
		b.GroupType = s
	}
	return true
}

// MarshalJSON encodes known fields (omitting empty strings and a nil
// payload) merged with Extra. Known fields win over Extra keys of the same
// name.
func (b Block) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Extra)+6)
	for k, v := range b.Extra {
		out[k] = v
	}
	out["uuid"] = b.UUID
	setString(out, "type", b.Type)
	setString(out, "label", b.Label)
	setString(out, "groupUuid", b.GroupUUID)
	setString(out, "groupType", b.GroupType)
	if b.Payload != nil {
		out["payload"] = map[string]any(b.Payload)
	}
	return json.Marshal(out)
}

// Form is a Tally form definition.
type Form struct {
	ID        string
	Name      string
	Settings  map[string]any
	Blocks    []Block
	UpdatedAt string

	// HasBlocks records whether a "blocks" array was present when decoding.
	HasBlocks bool

	Extra map[string]json.RawMessage
}

var formKnownKeys = map[string]bool{
	"id": true, "name": true, "settings": true, "blocks": true, "updatedAt": true,
}

// Clone returns a deep copy of f.
func (f Form) Clone() Form {
	out := f
	out.Settings = Payload(f.Settings).Clone()
	if f.Blocks != nil {
		out.Blocks = make([]Block, len(f.Blocks))
		for i, b := range f.Blocks {
			out.Blocks[i] = b.Clone()
		}
	}
	out.Extra = cloneRaw(f.Extra)
	return out
}

// UnmarshalJSON decodes a form, keeping unknown keys in Extra.
func (f *Form) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode form: %w", err)
	}
	*f = Form{}
	for key, val := range raw {
		if !formKnownKeys[key] || !f.setKnown(key, val) {
			if f.Extra == nil {
				f.Extra = make(map[string]json.RawMessage)
			}
			f.Extra[key] = append(json.RawMessage(nil), val...)
		}
	}
	return nil
}

func (f *Form) setKnown(key string, val json.RawMessage) bool {
	if isJSONNull(val) {
		return false
	}
	switch key {
	case "blocks":
		var blocks []Block
		if json.Unmarshal(val, &blocks) != nil {
			return false
		}
		if blocks == nil {
			blocks = []Block{}
		}
		f.Blocks = blocks
		f.HasBlocks = true
		return true
	case "settings":
		var s map[string]any
		if json.Unmarshal(val, &s) != nil {
			return false
		}
		f.Settings = s
		return true
	}
	var s string
	if err := json.Unmarshal(val, &s); err != nil || s == "" {
		return false
	}
	switch key {
	case "id":
		f.ID = s
	case "name":
		f.Name = s
	case "updatedAt":
		f.UpdatedAt = s
	}
	return true
}

// MarshalJSON encodes the form with its Extra keys.
func (f Form) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Extra)+5)
	for k, v := range f.Extra {
		out[k] = v
	}
	setString(out, "id", f.ID)
	setString(out, "name", f.Name)
	setString(out, "updatedAt", f.UpdatedAt)
	if f.Settings != nil {
		out["settings"] = f.Settings
	}
	blocks := f.Blocks
	if blocks == nil {
		blocks = []Block{}
	}
	out["blocks"] = blocks
	return json.Marshal(out)
}

// FormUpdate is the body of a form PATCH or POST. A nil Settings is left
// out; an empty one is sent as {}.
type FormUpdate struct {
	Name     string
	Settings map[string]any
	Blocks   []Block
}

// MarshalJSON encodes the update with blocks always present.
func (u FormUpdate) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3)
	setString(out, "name", u.Name)
	if u.Settings != nil {
		out["settings"] = u.Settings
	}
	blocks := u.Blocks
	if blocks == nil {
		blocks = []Block{}
	}
	out["blocks"] = blocks
	return json.Marshal(out)
}

// SelectOption is a choice option stored in a block's payload "options" list.
type SelectOption struct {
	Label string
	Value any
	Extra map[string]json.RawMessage
}

// UnmarshalJSON decodes an option, keeping unknown keys in Extra.
func (o *SelectOption) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode option: %w", err)
	}
	*o = SelectOption{}
	for key, val := range raw {
		switch key {
		case "label":
			if json.Unmarshal(val, &o.Label) == nil {
				continue
			}
		case "value":
			if json.Unmarshal(val, &o.Value) == nil {
				continue
			}
		}
		if o.Extra == nil {
			o.Extra = make(map[string]json.RawMessage)
		}
		o.Extra[key] = append(json.RawMessage(nil), val...)
	}
	return nil
}

// MarshalJSON encodes the option with its Extra keys.
func (o SelectOption) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Map())
}

// Map returns the option as a generic JSON object, the representation used
// inside payloads.
func (o SelectOption) Map() map[string]any {
	out := make(map[string]any, len(o.Extra)+2)
	for k, v := range o.Extra {
		var decoded any
		if json.Unmarshal(v, &decoded) == nil {
			out[k] = decoded
		}
	}
	out["label"] = o.Label
	out["value"] = o.Value
	return out
}

// Question is one entry of the form questions listing.
type Question struct {
	ID        string `json:"id,omitempty"`
	UUID      string `json:"uuid,omitempty"`
	BlockUUID string `json:"blockUuid,omitempty"`
	Label     string `json:"label,omitempty"`
	Title     string `json:"title,omitempty"`
	Type      string `json:"type,omitempty"`
}

// DisplayLabel is the label, falling back to the title.
func (q Question) DisplayLabel() string {
	if q.Label != "" {
		return q.Label
	}
	return q.Title
}

// BlockRef resolves the block uuid a question points at.
func (q Question) BlockRef() string {
	switch {
	case q.BlockUUID != "":
		return q.BlockUUID
	case q.ID != "":
		return q.ID
	default:
		return q.UUID
	}
}

func setString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func cloneRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
