// Package extract pulls fenced code and JSON blocks out of free-form LLM text.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)[ \t]*\r?\n(.*?)```")

// FencedBlock returns the last fenced block whose opening fence carries the
// requested language tag. An empty lang matches blocks with no tag. The inner
// text is returned trimmed; ok is false when no such block exists.
func FencedBlock(content, lang string) (string, bool) {
	matches := fencedRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return "", false
	}

	lang = strings.ToLower(strings.TrimSpace(lang))
	for i := len(matches) - 1; i >= 0; i-- {
		tag := strings.ToLower(strings.TrimSpace(matches[i][1]))
		if tag == lang {
			return strings.TrimSpace(matches[i][2]), true
		}
	}
	return "", false
}

// CodeBlock extracts source for the given language, falling back to the last
// untagged fence when no tagged block is present.
func CodeBlock(content, lang string) (string, bool) {
	if code, ok := FencedBlock(content, lang); ok {
		return code, true
	}
	return FencedBlock(content, "")
}

// JSONBlock extracts a JSON object from the content: a json-tagged fence
// first, then an untagged fence, then the raw content when it already parses
// as a JSON object.
func JSONBlock(content string) (string, bool) {
	for _, lang := range []string{"json", ""} {
		if block, ok := FencedBlock(content, lang); ok && isJSONObject(block) {
			return block, true
		}
	}

	trimmed := strings.TrimSpace(content)
	if isJSONObject(trimmed) {
		return trimmed, true
	}
	return "", false
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil
}
