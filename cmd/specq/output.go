package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/specq/specq/internal/ui"
)

// Exit codes form the scheduler contract: 1 is an expected nothing-to-do
// condition, 2 is an unexpected error. Both still print an envelope.
const (
	exitNothingToDo = 1
	exitUnexpected  = 2
)

// outputJSON prints the success envelope to stdout: the payload's fields
// inlined beside "success": true.
func outputJSON(payload interface{}) {
	m := map[string]interface{}{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			outputJSONError(fmt.Errorf("failed to encode payload: %w", err), exitUnexpected)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			outputJSONError(fmt.Errorf("failed to encode payload: %w", err), exitUnexpected)
		}
	}
	m["success"] = true
	encodeEnvelope(m)
}

// outputJSONError prints the failure envelope to stdout and exits with
// code. The scheduler parses stdout uniformly regardless of exit code.
func outputJSONError(err error, code int) {
	encodeEnvelope(map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
	os.Exit(code)
}

func encodeEnvelope(m map[string]interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(exitUnexpected)
	}
}

// fatal reports an unexpected error on both streams and exits 2.
func fatal(err error) {
	ui.Errorf("%v", err)
	outputJSONError(err, exitUnexpected)
}

// nothingToDo reports an expected no-work outcome on both streams and
// exits 1.
func nothingToDo(reason string) {
	ui.Infof("%s", reason)
	outputJSONError(fmt.Errorf("%s", reason), exitNothingToDo)
}
