// Package schema normalizes tool parameter JSON Schemas into the subset each
// upstream accepts. Gemini and Antigravity share most rewrites; Antigravity is
// stricter and additionally guarantees no object schema arrives empty.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/llm-gate/llm-gate/internal/json"
)

// Dialect selects the target schema subset.
type Dialect int

const (
	// DialectGemini targets the Gemini CLI / Cloud Code Assist validator.
	DialectGemini Dialect = iota
	// DialectAntigravity targets the Antigravity validator, which rejects
	// object schemas without properties.
	DialectAntigravity
)

// PlaceholderReasonDescription marks the synthetic `reason` property injected
// into empty object schemas for Antigravity. The Gemini dialect strips
// properties carrying exactly this description again.
const PlaceholderReasonDescription = "Brief explanation of why you are calling this tool"

// Constraint keys that the target validators reject. Their values are folded
// into the description before removal.
var constraintKeys = []string{
	"minLength", "maxLength", "exclusiveMinimum", "exclusiveMaximum",
	"pattern", "minItems", "maxItems", "format", "default", "examples",
}

var bannedKeys = []string{
	"$schema", "$defs", "definitions", "const", "$ref",
	"additionalProperties", "propertyNames",
}

// Sanitize returns a sanitized deep copy of the given schema value. It is
// total: non-object, non-array nodes pass through unchanged.
func Sanitize(schema any, dialect Dialect) any {
	node := deepCopy(schema)
	sanitizeNode(node, dialect, true)
	return node
}

// SanitizeObject sanitizes a schema already decoded as a JSON object.
func SanitizeObject(schema map[string]any, dialect Dialect) map[string]any {
	out, _ := Sanitize(schema, dialect).(map[string]any)
	return out
}

// sanitizeNode rewrites node in place and reports whether the node admitted
// null (so the caller can drop it from the enclosing required list).
func sanitizeNode(node any, dialect Dialect, isRoot bool) (nullable bool) {
	switch typed := node.(type) {
	case map[string]any:
		return sanitizeMap(typed, dialect, isRoot)
	case []any:
		for _, item := range typed {
			sanitizeNode(item, dialect, false)
		}
	}
	return false
}

func sanitizeMap(m map[string]any, dialect Dialect, isRoot bool) (nullable bool) {
	// 1. $ref becomes a prose hint; the target cannot resolve references.
	if ref, ok := m["$ref"].(string); ok {
		desc := ""
		if d, okDesc := m["description"].(string); okDesc {
			desc = d
		}
		segs := strings.Split(ref, "/")
		hint := "See: " + segs[len(segs)-1]
		if desc != "" {
			hint += " (" + desc + ")"
		}
		clearMap(m)
		m["type"] = "object"
		m["description"] = hint
		return false
	}

	// 2. const becomes a single-element enum.
	if c, ok := m["const"]; ok {
		m["enum"] = []any{c}
		delete(m, "const")
	}

	// 3+4. Enum values become strings; small enums get an allowed-values hint.
	if enumRaw, ok := m["enum"].([]any); ok {
		values := make([]any, len(enumRaw))
		strs := make([]string, len(enumRaw))
		for i, v := range enumRaw {
			s := stringifyScalar(v)
			values[i] = s
			strs[i] = s
		}
		m["enum"] = values
		m["type"] = "string"
		if len(strs) >= 2 && len(strs) <= 10 {
			appendDescription(m, "(Allowed: "+strings.Join(strs, ", ")+")")
		}
	}

	// 5. additionalProperties:false survives only as a hint.
	if ap, ok := m["additionalProperties"].(bool); ok && !ap {
		appendDescription(m, "(No extra properties allowed)")
	}

	// 6. Scalar constraints fold into the description.
	for _, key := range constraintKeys {
		if v, ok := m[key]; ok {
			appendDescription(m, "("+key+": "+stringifyScalar(v)+")")
		}
	}

	// 7. allOf merges into a single object schema.
	if allOf, ok := m["allOf"].([]any); ok {
		mergeAllOf(m, allOf)
		delete(m, "allOf")
	}

	// 8. anyOf/oneOf collapse to the best candidate.
	for _, key := range []string{"anyOf", "oneOf"} {
		if variants, ok := m[key].([]any); ok && len(variants) > 0 {
			flattenVariants(m, key, variants)
		}
	}

	// 9. Type arrays flatten to the first non-null type.
	if types, ok := m["type"].([]any); ok {
		nullable = flattenTypeArray(m, types)
	}

	// 10. Remove keys the validator rejects.
	for _, key := range bannedKeys {
		delete(m, key)
	}
	for _, key := range constraintKeys {
		delete(m, key)
	}
	for key := range m {
		if strings.HasPrefix(key, "x-") {
			delete(m, key)
		}
	}

	// 11. Gemini additionally rejects nullable/title and has no use for the
	// Antigravity placeholder fields.
	if dialect == DialectGemini {
		delete(m, "nullable")
		delete(m, "title")
	}

	// Recurse into children. Property names themselves must survive, so the
	// banned-key and constraint passes never touch the properties map keys.
	if props, ok := m["properties"].(map[string]any); ok {
		if dialect == DialectGemini {
			removeAntigravityPlaceholders(props, m)
		}
		for name, sub := range props {
			if sanitizeNode(sub, dialect, false) {
				removeRequired(m, name)
			}
		}
	}
	if items, ok := m["items"]; ok {
		sanitizeNode(items, dialect, false)
	}

	// 12. Required entries must reference existing properties.
	cleanRequired(m)

	// 13. Antigravity refuses empty object schemas; inject placeholders.
	if dialect == DialectAntigravity {
		injectPlaceholders(m, isRoot)
	}
	return nullable
}

func mergeAllOf(m map[string]any, allOf []any) {
	mergedProps, _ := m["properties"].(map[string]any)
	if mergedProps == nil {
		mergedProps = map[string]any{}
	}
	mergedReq := toStringSlice(m["required"])
	seen := make(map[string]bool, len(mergedReq))
	for _, r := range mergedReq {
		seen[r] = true
	}
	for _, variantRaw := range allOf {
		variant, ok := variantRaw.(map[string]any)
		if !ok {
			continue
		}
		if props, okProps := variant["properties"].(map[string]any); okProps {
			for name, sub := range props {
				if _, exists := mergedProps[name]; !exists {
					mergedProps[name] = sub
				}
			}
		}
		for _, r := range toStringSlice(variant["required"]) {
			if !seen[r] {
				seen[r] = true
				mergedReq = append(mergedReq, r)
			}
		}
	}
	if len(mergedProps) > 0 {
		m["properties"] = mergedProps
		if _, ok := m["type"]; !ok {
			m["type"] = "object"
		}
	}
	if len(mergedReq) > 0 {
		m["required"] = toAnySlice(mergedReq)
	}
}

func variantTypeName(v map[string]any) string {
	if t, ok := v["type"].(string); ok && t != "" {
		return t
	}
	if _, ok := v["properties"]; ok {
		return "object"
	}
	if _, ok := v["items"]; ok {
		return "array"
	}
	return "any"
}

func variantScore(v map[string]any) int {
	name := variantTypeName(v)
	switch {
	case name == "object":
		return 3
	case name == "array":
		return 2
	case name == "null":
		return 0
	default:
		return 1
	}
}

func flattenVariants(m map[string]any, key string, variants []any) {
	parentDesc, _ := m["description"].(string)
	best := -1
	bestScore := -1
	names := make([]string, 0, len(variants))
	for i, raw := range variants {
		v, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		names = append(names, variantTypeName(v))
		if score := variantScore(v); score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		delete(m, key)
		return
	}
	selected, _ := variants[best].(map[string]any)
	selectedName := variantTypeName(selected)
	clearMap(m)
	for k, v := range selected {
		m[k] = v
	}
	if _, ok := m["type"]; !ok && selectedName != "any" {
		m["type"] = selectedName
	}
	if parentDesc != "" {
		if own, _ := m["description"].(string); own != "" && own != parentDesc {
			m["description"] = parentDesc + " " + own
		} else {
			m["description"] = parentDesc
		}
	}
	if len(names) >= 2 {
		appendDescription(m, "(Accepts: "+strings.Join(names, " | ")+")")
	}
}

func flattenTypeArray(m map[string]any, types []any) (nullable bool) {
	nonNull := make([]string, 0, len(types))
	for _, t := range types {
		s, _ := t.(string)
		if s == "null" {
			nullable = true
			continue
		}
		if s != "" {
			nonNull = append(nonNull, s)
		}
	}
	switch {
	case len(nonNull) == 0:
		m["type"] = "string"
	default:
		m["type"] = nonNull[0]
	}
	if nullable {
		appendDescription(m, "(nullable)")
	}
	if len(nonNull) >= 2 {
		appendDescription(m, "(Accepts: "+strings.Join(nonNull, " | ")+")")
	}
	return nullable
}

// removeAntigravityPlaceholders strips fields a previous Antigravity pass
// injected: the `_` boolean and a lone `reason` property carrying the fixed
// placeholder description.
func removeAntigravityPlaceholders(props map[string]any, parent map[string]any) {
	if _, ok := props["_"]; ok {
		delete(props, "_")
		removeRequired(parent, "_")
	}
	if len(props) == 1 {
		if reason, ok := props["reason"].(map[string]any); ok {
			if desc, _ := reason["description"].(string); desc == PlaceholderReasonDescription {
				delete(props, "reason")
				removeRequired(parent, "reason")
			}
		}
	}
}

func injectPlaceholders(m map[string]any, isRoot bool) {
	t, _ := m["type"].(string)
	if t != "object" {
		return
	}
	props, _ := m["properties"].(map[string]any)
	if len(props) == 0 {
		m["properties"] = map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": PlaceholderReasonDescription,
			},
		}
		m["required"] = []any{"reason"}
		return
	}
	if len(toStringSlice(m["required"])) == 0 && !isRoot {
		props["_"] = map[string]any{"type": "boolean"}
		m["required"] = []any{"_"}
	}
}

func cleanRequired(m map[string]any) {
	req := toStringSlice(m["required"])
	if req == nil {
		return
	}
	props, _ := m["properties"].(map[string]any)
	kept := req[:0]
	for _, name := range req {
		if _, ok := props[name]; ok {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		delete(m, "required")
		return
	}
	m["required"] = toAnySlice(kept)
}

func appendDescription(m map[string]any, hint string) {
	if desc, ok := m["description"].(string); ok && desc != "" {
		if strings.Contains(desc, hint) {
			return
		}
		m["description"] = desc + " " + hint
		return
	}
	m["description"] = hint
}

func removeRequired(m map[string]any, name string) {
	req := toStringSlice(m["required"])
	if req == nil {
		return
	}
	kept := req[:0]
	for _, r := range req {
		if r != name {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(m, "required")
		return
	}
	m["required"] = toAnySlice(kept)
}

func stringifyScalar(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case nil:
		return "null"
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "{" + strings.Join(keys, ", ") + "}"
	default:
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return fmt.Sprintf("%v", v)
	}
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, okStr := item.(string); okStr {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func clearMap(m map[string]any) {
	for k := range m {
		delete(m, k)
	}
}

func deepCopy(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, sub := range typed {
			out[k] = deepCopy(sub)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, sub := range typed {
			out[i] = deepCopy(sub)
		}
		return out
	default:
		return v
	}
}
