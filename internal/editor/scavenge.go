package editor

import "encoding/json"

// characterKeys are the fields that mark a scavenged object as character-shaped.
var characterKeys = []string{"i", "character", "mal_id", "n"}

// scavenge scans text for balanced top-level {...} substrings, parses each one
// on its own and keeps those that look like characters. A scavenged save
// document contributes its grid entries.
func scavenge(text string) []json.RawMessage {
	var found []json.RawMessage
	depth, start := 0, -1
	inString, escaped := false, false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			// Quotes only open strings inside an object; stray quotes in
			// surrounding text are ignored.
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				found = append(found, recognize([]byte(text[start:i+1]))...)
				start = -1
			}
		}
	}
	return found
}

func recognize(chunk []byte) []json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(chunk, &obj); err != nil {
		return nil
	}
	for _, k := range characterKeys {
		if _, ok := obj[k]; ok {
			return []json.RawMessage{chunk}
		}
	}
	if raw, ok := obj["grid"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			return items
		}
	}
	return nil
}
