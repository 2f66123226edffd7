package job

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Result is attached to a target once it reports an outcome. Details are
// merged flat into the JSON object next to the fixed fields.
type Result struct {
	Success bool
	Message string
	Error   string
	Details map[string]any
}

var reservedResultKeys = map[string]struct{}{
	"success": {},
	"message": {},
	"error":   {},
}

// MarshalJSON encodes the result as {success, message?, error?, ...details}
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Details)+3)
	for k, v := range r.Details {
		if _, reserved := reservedResultKeys[k]; reserved {
			continue
		}
		out[k] = v
	}
	out["success"] = r.Success
	if r.Message != "" {
		out["message"] = r.Message
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the fixed fields and collects every other key into Details
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}

	*r = Result{}
	if v, ok := raw["success"]; ok {
		if err := json.Unmarshal(v, &r.Success); err != nil {
			return fmt.Errorf("failed to decode result success: %w", err)
		}
	}
	if v, ok := raw["message"]; ok {
		if err := json.Unmarshal(v, &r.Message); err != nil {
			return fmt.Errorf("failed to decode result message: %w", err)
		}
	}
	if v, ok := raw["error"]; ok {
		if err := json.Unmarshal(v, &r.Error); err != nil {
			return fmt.Errorf("failed to decode result error: %w", err)
		}
	}

	for k, v := range raw {
		if _, reserved := reservedResultKeys[k]; reserved {
			continue
		}
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return fmt.Errorf("failed to decode result detail %q: %w", k, err)
		}
		if r.Details == nil {
			r.Details = make(map[string]any)
		}
		r.Details[k] = value
	}
	return nil
}

// Clone returns a copy of the result; nil stays nil
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	if r.Details != nil {
		c.Details = maps.Clone(r.Details)
	}
	return &c
}
