package preview

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// JSON previews a JSON file through an inferred JSON schema.
func JSON(path, name string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc any
	if err := json.Unmarshal([]byte(decode(trimBOM(raw))), &doc); err != nil {
		return "", err
	}

	schema := map[string]any{"$schema": "http://json-schema.org/schema#"}
	for k, v := range inferSchema(doc) {
		schema[k] = v
	}
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("-> %s has auto-generated json schema:\n%s", name, out), nil
}

// inferSchema builds a minimal schema: types, object properties with the
// keys present in every instance marked required, and merged array items.
func inferSchema(v any) map[string]any {
	switch x := v.(type) {
	case nil:
		return map[string]any{"type": "null"}
	case bool:
		return map[string]any{"type": "boolean"}
	case float64:
		if x == float64(int64(x)) {
			return map[string]any{"type": "integer"}
		}
		return map[string]any{"type": "number"}
	case string:
		return map[string]any{"type": "string"}
	case []any:
		s := map[string]any{"type": "array"}
		if len(x) > 0 {
			items := inferSchema(x[0])
			for _, item := range x[1:] {
				items = mergeSchema(items, inferSchema(item))
			}
			s["items"] = items
		}
		return s
	case map[string]any:
		props := make(map[string]any, len(x))
		required := make([]string, 0, len(x))
		for k, val := range x {
			props[k] = inferSchema(val)
			required = append(required, k)
		}
		sort.Strings(required)
		return map[string]any{"type": "object", "properties": props, "required": required}
	}
	return map[string]any{}
}

func mergeSchema(a, b map[string]any) map[string]any {
	ta, tb := a["type"], b["type"]
	if ta != tb {
		if (ta == "integer" && tb == "number") || (ta == "number" && tb == "integer") {
			return map[string]any{"type": "number"}
		}
		return map[string]any{"anyOf": []any{a, b}}
	}
	switch ta {
	case "object":
		pa, _ := a["properties"].(map[string]any)
		pb, _ := b["properties"].(map[string]any)
		props := make(map[string]any, len(pa))
		for k, v := range pa {
			props[k] = v
		}
		for k, v := range pb {
			if prev, ok := props[k].(map[string]any); ok {
				props[k] = mergeSchema(prev, v.(map[string]any))
			} else {
				props[k] = v
			}
		}
		var required []string
		for k := range pa {
			if _, ok := pb[k]; ok {
				required = append(required, k)
			}
		}
		sort.Strings(required)
		return map[string]any{"type": "object", "properties": props, "required": required}
	case "array":
		ia, okA := a["items"].(map[string]any)
		ib, okB := b["items"].(map[string]any)
		switch {
		case okA && okB:
			return map[string]any{"type": "array", "items": mergeSchema(ia, ib)}
		case okB:
			return b
		}
	}
	return a
}
