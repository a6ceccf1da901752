package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iota-uz/extid/modules/extid/services"
)

type commandOutput struct {
	Command    string `json:"command"`
	DurationMS int64  `json:"duration_ms"`
	Result     any    `json:"result"`
}

type resultOutput struct {
	Kind       string `json:"kind"`
	EntityID   int64  `json:"entity_id"`
	ExternalID string `json:"external_id,omitempty"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
}

func newResultOutput(res services.Result) resultOutput {
	out := resultOutput{
		Kind:       string(res.Kind),
		EntityID:   res.EntityID,
		ExternalID: res.ExternalID,
		Outcome:    string(res.Outcome),
	}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return withCode(exitDB, fmt.Errorf("json encode: %w", err))
	}
	return nil
}
