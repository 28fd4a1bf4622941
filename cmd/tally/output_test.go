package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally-node/internal/domain"
	"tally-node/internal/usecase/batch"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"command error", commandError("bad flag", nil), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("run: %w", &ExitError{Code: ExitCommandError}), ExitCommandError},
		{"tool error", &batch.ToolError{Message: "boom"}, ExitFailure},
		{"plain", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "read items: gone", commandError("read items", errors.New("gone")).Error())
	assert.Equal(t, "bad", commandError("bad", nil).Error())

	inner := errors.New("inner")
	assert.ErrorIs(t, commandError("x", inner), inner)
}

func TestDescribe(t *testing.T) {
	code, msg := describe(commandError("bad", nil))
	assert.Equal(t, "COMMAND_ERROR", code)
	assert.Equal(t, "bad", msg)

	code, msg = describe(fmt.Errorf("item 2: %w", &batch.ToolError{Message: "boom"}))
	assert.Equal(t, "TOOL_ERROR", code)
	assert.Equal(t, "item 2: boom", msg)

	code, msg = describe(domain.NewDomainError("op", domain.ErrNotFound, "form f1"))
	assert.Equal(t, string(domain.CodeNotFound), code)
	assert.Equal(t, "form f1", msg)
}

func TestFormatter_RecordsText(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &formatter{format: "text", w: &out, errW: &errOut}

	recs := []json.RawMessage{json.RawMessage(`{"id":"a"}`), json.RawMessage(`{"error":"x"}`)}
	require.NoError(t, f.records("run-1", recs, 1))

	assert.Equal(t, "{\n  \"id\": \"a\"\n}\n{\n  \"error\": \"x\"\n}\n", out.String())
	assert.Equal(t, "1 item(s) failed\n", errOut.String())
}

func TestFormatter_RecordsJSON(t *testing.T) {
	var out bytes.Buffer
	f := &formatter{format: "json", w: &out, errW: &bytes.Buffer{}}

	require.NoError(t, f.records("run-1", nil, 0))

	assert.JSONEq(t, `{"status":"ok","run_id":"run-1","data":[]}`, out.String())
}

func TestFormatter_RecordsInvalidJSON(t *testing.T) {
	f := &formatter{format: "text", w: &bytes.Buffer{}, errW: &bytes.Buffer{}}
	assert.Error(t, f.records("", []json.RawMessage{json.RawMessage(`{`)}, 0))
}

func TestFormatter_Value(t *testing.T) {
	var out bytes.Buffer
	f := &formatter{format: "text", w: &out, errW: &bytes.Buffer{}}
	require.NoError(t, f.value(map[string]int{"n": 1}))
	assert.Equal(t, "{\n  \"n\": 1\n}\n", out.String())

	out.Reset()
	f.format = "json"
	require.NoError(t, f.value(map[string]int{"n": 1}))
	assert.JSONEq(t, `{"status":"ok","data":{"n":1}}`, out.String())
}

func TestFormatter_Error(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &formatter{format: "text", w: &out, errW: &errOut}
	f.error("NOT_FOUND", "form f1")
	assert.Empty(t, out.String())
	assert.Equal(t, "Error [NOT_FOUND]: form f1\n", errOut.String())

	errOut.Reset()
	f.format = "json"
	f.error("NOT_FOUND", "form f1")
	assert.Empty(t, errOut.String())
	assert.JSONEq(t, `{"status":"error","error":{"code":"NOT_FOUND","message":"form f1"}}`, out.String())
}
