// Package rewrite implements the JSON-RPC id rewriting scheme that lets a
// stateless router demultiplex responses from many tool servers back to the
// caller that originated each request.
//
// A caller's original id is folded into a new id of the form
// "<callerUUID>_<tag>_<payload>", where tag records whether the original id
// was a JSON number or a JSON string so Parse can reconstruct it with the
// same type. Tool servers see only the rewritten id; the router restores the
// original before handing a response back to the caller.
package rewrite

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	separator = "_"

	tagNumber = "n"
	tagString = "s"
)

// Rewrite folds callerID and the original JSON-RPC id into a single id
// string safe to hand to a tool server. original must be a JSON number,
// JSON string, or null (per the JSON-RPC 2.0 id grammar); null ids produce
// an empty payload.
func Rewrite(callerID string, original json.RawMessage) (string, error) {
	tag, payload, err := encode(original)
	if err != nil {
		return "", err
	}
	return callerID + separator + tag + separator + payload, nil
}

// Parse splits a rewritten id back into the caller id and the original
// JSON-RPC id. ok is false if id does not follow the rewritten format,
// meaning it was never produced by Rewrite (e.g. a tool server echoing its
// own unrelated id).
func Parse(id string) (callerID string, original json.RawMessage, ok bool) {
	parts := strings.SplitN(id, separator, 3)
	if len(parts) != 3 {
		return "", nil, false
	}
	callerID, tag, payload := parts[0], parts[1], parts[2]
	if callerID == "" {
		return "", nil, false
	}

	orig, err := decode(tag, payload)
	if err != nil {
		return "", nil, false
	}
	return callerID, orig, true
}

// encode returns the tag and string payload for a JSON-RPC id value.
func encode(original json.RawMessage) (tag, payload string, err error) {
	trimmed := strings.TrimSpace(string(original))
	if trimmed == "" || trimmed == "null" {
		return tagString, "", nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(original, &s); err != nil {
			return "", "", err
		}
		return tagString, s, nil
	}

	// Anything else must be a JSON number to satisfy the id grammar.
	var n json.Number
	if err := json.Unmarshal(original, &n); err != nil {
		return "", "", err
	}
	return tagNumber, n.String(), nil
}

// decode reverses encode, reconstructing a JSON-RPC id with its original type.
// A payload tagged numeric that no longer parses as a number falls back to
// its literal string form rather than failing outright.
func decode(tag, payload string) (json.RawMessage, error) {
	switch tag {
	case tagNumber:
		if _, err := strconv.ParseFloat(payload, 64); err != nil {
			return json.Marshal(payload)
		}
		return json.RawMessage(payload), nil
	case tagString:
		return json.Marshal(payload)
	default:
		return nil, errUnknownTag(tag)
	}
}

type errUnknownTag string

func (e errUnknownTag) Error() string {
	return "rewrite: unknown id tag " + string(e)
}
