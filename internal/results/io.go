package results

import (
	"encoding/json"
	"fmt"
	"os"
)

func readRaw(filename string) (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot read detection results %s: %w", filename, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("invalid detection results JSON %s: %w", filename, err)
	}
	return raw, nil
}

// Write serializes the table to filename, preserving unknown top-level
// fields from the original file.
func (t *Table) Write(filename string) error {
	// Marshal through an intermediate map so output keys are sorted and
	// stable across runs.
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("cannot serialize detection results: %w", err)
	}
	var indented map[string]json.RawMessage
	if err := json.Unmarshal(b, &indented); err != nil {
		return err
	}
	out, err := json.MarshalIndent(indented, "", " ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, out, 0o644); err != nil {
		return fmt.Errorf("cannot write detection results %s: %w", filename, err)
	}
	return nil
}
