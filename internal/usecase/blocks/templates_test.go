package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally-node/internal/domain"
)

func TestNewBlockTemplate(t *testing.T) {
	b := NewBlockTemplate("INPUT_EMAIL", "Email", domain.Payload{"isRequired": true})
	assert.Regexp(t, uuidV4, b.UUID)
	assert.Regexp(t, uuidV4, b.GroupUUID)
	assert.NotEqual(t, b.UUID, b.GroupUUID)
	assert.Equal(t, "INPUT_EMAIL", b.GroupType)
	assert.Equal(t, domain.Payload{"isRequired": true, "placeholder": ""}, b.Payload)

	d := NewBlockTemplate("DIVIDER", "", nil)
	assert.Nil(t, d.Payload)
}

func TestNewTitleBlock(t *testing.T) {
	b := NewTitleBlock("About you")
	assert.Equal(t, domain.BlockTypeTitle, b.Type)
	assert.Equal(t, domain.GroupTypeQuestion, b.GroupType)
	assert.NotEmpty(t, b.GroupUUID)
	assert.Equal(t, "About you", TitleText(b))
}

func TestNewOptionGroup(t *testing.T) {
	out := NewOptionGroup(domain.FieldSelect, []string{" Red ", "", "Blue", "  "}, true)
	require.Len(t, out, 2)

	assert.Equal(t, out[0].GroupUUID, out[1].GroupUUID)
	assert.NotEqual(t, out[0].UUID, out[1].UUID)
	assert.Equal(t, "Red", out[0].Label)
	assert.Equal(t, domain.Payload{"index": 0, "isRequired": true, "isFirst": true, "isLast": false, "text": "Red"}, out[0].Payload)
	assert.Equal(t, domain.Payload{"index": 1, "isRequired": true, "isFirst": false, "isLast": true, "text": "Blue"}, out[1].Payload)
	assert.Equal(t, domain.FieldSelect.OptionType(), out[0].Type)
	assert.Equal(t, domain.FieldSelect.GroupType(), out[0].GroupType)

	assert.Empty(t, NewOptionGroup(domain.FieldCheckboxes, []string{" "}, false))
}

func TestNewFieldBlocks_EmailScenario(t *testing.T) {
	run, ok := NewFieldBlocks(FieldSpec{Kind: domain.FieldEmail, Label: "Email", Required: true})
	require.True(t, ok)
	require.Len(t, run, 1)
	b := run[0]
	assert.Equal(t, domain.TypeInputEmail, b.Type)
	assert.Equal(t, "Email", b.Label)
	assert.Equal(t, true, b.Payload["isRequired"])
	assert.Equal(t, "Email", b.Payload["placeholder"])
}

func TestNewFieldBlocks_TitleAndPayloadOverride(t *testing.T) {
	run, ok := NewFieldBlocks(FieldSpec{
		Kind:        domain.FieldInput,
		Label:       "Name",
		Title:       "Who are you?",
		Placeholder: "Jane Doe",
		Payload:     domain.Payload{"maxLength": 40},
	})
	require.True(t, ok)
	require.Len(t, run, 2)
	assert.Equal(t, domain.BlockTypeTitle, run[0].Type)
	assert.Equal(t, "Jane Doe", run[1].Payload["placeholder"])
	assert.Equal(t, 40, run[1].Payload["maxLength"])
	assert.Equal(t, false, run[1].Payload["isRequired"])
}

func TestNewFieldBlocks_ChoiceNeedsOptions(t *testing.T) {
	_, ok := NewFieldBlocks(FieldSpec{Kind: domain.FieldRadio, Label: "Pick"})
	assert.False(t, ok)

	run, ok := NewFieldBlocks(FieldSpec{Kind: domain.FieldRadio, Label: "Pick", Options: []string{"A", "B"}})
	require.True(t, ok)
	assert.Len(t, run, 2)
}

func TestNewFieldBlocks_Custom(t *testing.T) {
	run, ok := NewFieldBlocks(FieldSpec{Kind: domain.FieldCustom, CustomType: "signature", Label: "Sign"})
	require.True(t, ok)
	assert.Equal(t, "SIGNATURE", run[0].Type)
}

func TestNewFieldBlocks_CustomResolvesKnownTypes(t *testing.T) {
	run, ok := NewFieldBlocks(FieldSpec{Kind: domain.FieldCustom, CustomType: "SELECT", Label: "Color", Options: []string{"Red", "Blue"}})
	require.True(t, ok)
	require.Len(t, run, 2)
	assert.Equal(t, "DROPDOWN_OPTION", run[0].Type)
	assert.Equal(t, "DROPDOWN", run[0].GroupType)
	assert.Equal(t, run[0].GroupUUID, run[1].GroupUUID)

	_, ok = NewFieldBlocks(FieldSpec{Kind: domain.FieldCustom, CustomType: "select", Label: "Color"})
	assert.False(t, ok)

	run, ok = NewFieldBlocks(FieldSpec{Kind: domain.FieldCustom, CustomType: "input", Label: "Color"})
	require.True(t, ok)
	assert.Equal(t, domain.TypeInputText, run[0].Type)
	assert.Equal(t, "Color", run[0].Payload["placeholder"])

	run, ok = NewFieldBlocks(FieldSpec{Kind: domain.FieldCustom, CustomType: "INPUT_TEXT", Label: "Color"})
	require.True(t, ok)
	assert.Equal(t, "Color", run[0].Payload["placeholder"])

	run, ok = NewFieldBlocks(FieldSpec{Kind: domain.FieldCustom, CustomType: "INPUT_PHONE_NUMBER", Label: "Phone"})
	require.True(t, ok)
	assert.Equal(t, false, run[0].Payload["internationalFormat"])
}
