package openai

import (
	"encoding/json"
	"regexp"
)

var (
	emptyBeforeComma = regexp.MustCompile(`:\s*,`)
	emptyBeforeBrace = regexp.MustCompile(`:\s*}`)
	trailingBrace    = regexp.MustCompile(`,\s*}`)
	trailingBracket  = regexp.MustCompile(`,\s*]`)
)

// repairJSON patches the malformations models commonly emit in tool
// arguments: empty values and trailing commas.
func repairJSON(s string) string {
	s = emptyBeforeComma.ReplaceAllString(s, ": null,")
	s = emptyBeforeBrace.ReplaceAllString(s, ": null}")
	s = trailingBrace.ReplaceAllString(s, "}")
	s = trailingBracket.ReplaceAllString(s, "]")
	return s
}

// decodeArguments parses tool call arguments, repairing them once if needed.
func decodeArguments(args string) (map[string]any, error) {
	var out map[string]any
	err := json.Unmarshal([]byte(args), &out)
	if err == nil {
		return out, nil
	}
	if rerr := json.Unmarshal([]byte(repairJSON(args)), &out); rerr == nil {
		return out, nil
	}
	return nil, err
}
