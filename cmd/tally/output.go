package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // an invocation failed (remote error, validation, conflict)
	ExitCommandError = 2 // bad flags, config or input files
)

// ExitError is an error with a specific exit code and a machine-parseable code.
type ExitError struct {
	Code    int
	ErrCode string
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// commandError wraps err as a command error (exit code 2).
func commandError(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, ErrCode: "COMMAND_ERROR", Message: message, Err: err}
}

// exitCode extracts the exit code from an error. Errors that are not an
// *ExitError exit with ExitFailure.
func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// response is the JSON envelope of --format json.
type response struct {
	Status string     `json:"status"` // "ok" or "error"
	RunID  string     `json:"run_id,omitempty"`
	Data   any        `json:"data,omitempty"`
	Failed int        `json:"failed,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// formatter writes command output as indented JSON records (text) or a
// single JSON envelope (json). Diagnostics go to errW so stdout stays
// parseable.
type formatter struct {
	format string
	w      io.Writer
	errW   io.Writer
}

// records prints the records of a run.
func (f *formatter) records(runID string, recs []json.RawMessage, failed int) error {
	if f.format == "json" {
		if recs == nil {
			recs = []json.RawMessage{}
		}
		return json.NewEncoder(f.w).Encode(response{Status: "ok", RunID: runID, Data: recs, Failed: failed})
	}
	for _, rec := range recs {
		var buf bytes.Buffer
		if err := json.Indent(&buf, rec, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		if _, err := f.w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	if failed > 0 {
		fmt.Fprintf(f.errW, "%d item(s) failed\n", failed)
	}
	return nil
}

// value prints a single value.
func (f *formatter) value(v any) error {
	if f.format == "json" {
		return json.NewEncoder(f.w).Encode(response{Status: "ok", Data: v})
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.w, string(data))
	return err
}

// error prints an error.
func (f *formatter) error(code, message string) {
	if f.format == "json" {
		_ = json.NewEncoder(f.w).Encode(response{Status: "error", Error: &errorBody{Code: code, Message: message}})
		return
	}
	fmt.Fprintf(f.errW, "Error [%s]: %s\n", code, message)
}
