package blocks

import (
	"strings"

	"tally-node/internal/domain"
)

// NewBlockTemplate builds a block with a fresh uuid and group uuid. The group
// type defaults to the block type. Text-like types start from
// isRequired=false and an empty placeholder, which payload overrides.
// An empty resulting payload is left unset.
func NewBlockTemplate(blockType, label string, payload domain.Payload) domain.Block {
	p := domain.Payload{}
	if domain.IsTextLikeType(blockType) {
		p["isRequired"] = false
		p["placeholder"] = ""
	}
	p = p.Merge(payload)
	if len(p) == 0 {
		p = nil
	}
	return domain.Block{
		UUID:      GenerateUUID(),
		Type:      blockType,
		Label:     label,
		GroupUUID: GenerateUUID(),
		GroupType: blockType,
		Payload:   p,
	}
}

// NewTitleBlock builds a question title. Its group type is QUESTION so it
// attaches to the question that follows it.
func NewTitleBlock(title string) domain.Block {
	return domain.Block{
		UUID:      GenerateUUID(),
		Type:      domain.BlockTypeTitle,
		GroupUUID: GenerateUUID(),
		GroupType: domain.GroupTypeQuestion,
		Payload: domain.Payload{
			"safeHTMLSchema": []any{[]any{title}},
		},
	}
}

// NewOptionGroup builds the option blocks of a choice field. All options
// share one group uuid; each carries its index, first/last markers, the
// required flag and its text. Blank options are dropped.
func NewOptionGroup(kind domain.FieldKind, options []string, required bool) []domain.Block {
	var texts []string
	for _, o := range options {
		if t := strings.TrimSpace(o); t != "" {
			texts = append(texts, t)
		}
	}

	group := GenerateUUID()
	out := make([]domain.Block, 0, len(texts))
	for i, text := range texts {
		out = append(out, domain.Block{
			UUID:      GenerateUUID(),
			Type:      kind.OptionType(),
			Label:     text,
			GroupUUID: group,
			GroupType: kind.GroupType(),
			Payload: domain.Payload{
				"index":      i,
				"isRequired": required,
				"isFirst":    i == 0,
				"isLast":     i == len(texts)-1,
				"text":       text,
			},
		})
	}
	return out
}

// FieldSpec describes a field to add.
type FieldSpec struct {
	Kind        domain.FieldKind
	CustomType  string // kind name or raw type for domain.FieldCustom
	Label       string
	Title       string // optional separate title block
	Placeholder string
	Required    bool
	Options     []string       // choice kinds
	Payload     domain.Payload // merged over the defaults
}

// NewFieldBlocks builds the run of blocks for a field: an optional title,
// then either the option group (choice kinds) or a single field block.
// Custom kinds take the rules of the kind their type resolves to. Choice
// kinds without options return ok=false.
func NewFieldBlocks(spec FieldSpec) ([]domain.Block, bool) {
	var run []domain.Block
	if t := strings.TrimSpace(spec.Title); t != "" {
		run = append(run, NewTitleBlock(t))
	}

	kind, rawType := spec.Kind.Resolve(spec.CustomType)
	if kind.IsChoice() {
		opts := NewOptionGroup(kind, spec.Options, spec.Required)
		if len(opts) == 0 {
			return nil, false
		}
		return append(run, opts...), true
	}

	payload := kind.DefaultPayload(spec.Required, spec.Placeholder, spec.Label).Merge(spec.Payload)
	return append(run, NewBlockTemplate(rawType, spec.Label, payload)), true
}
