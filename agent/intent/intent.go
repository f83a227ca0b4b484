// Package intent finds an action request embedded in free-form model output.
package intent

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Intent is the result of Extract. When Found is false the other fields are
// empty.
type Intent struct {
	Found  bool
	Action string
	Data   json.RawMessage
}

// None is the absent intent.
var None = Intent{}

// Extract scans text for the first balanced JSON object carrying a non-empty
// string "action" and an object "data". Prose, code fences and unrelated
// objects around it are ignored. Extract never fails; anything that does not
// qualify yields None.
func Extract(text string) Intent {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := matchBrace(text, start)
		if end < 0 {
			continue
		}
		if in, ok := candidate(text[start : end+1]); ok {
			return in
		}
	}
	return None
}

func candidate(raw string) (Intent, bool) {
	if !gjson.Valid(raw) {
		return None, false
	}
	action := gjson.Get(raw, "action")
	if action.Type != gjson.String || action.Str == "" {
		return None, false
	}
	data := gjson.Get(raw, "data")
	if !data.IsObject() {
		return None, false
	}
	return Intent{Found: true, Action: action.Str, Data: json.RawMessage(data.Raw)}, true
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON strings do not count.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
