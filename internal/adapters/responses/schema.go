// Package responses adapts canonical requests to the OpenAI-Responses-style
// wire shape (model prefixes gpt-5*, *codex*) and sanitizes JSON-Schema tool
// parameters to the dialect subset that backend accepts (§4.5.a).
package responses

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

var disallowedKeywords = map[string]bool{
	"additionalProperties": true,
	"default":              true,
	"$schema":              true,
	"$defs":                true,
	"definitions":          true,
	"$id":                  true,
	"$comment":             true,
	"minLength":            true,
	"maxLength":            true,
	"minItems":             true,
	"maxItems":             true,
	"pattern":              true,
	"format":               true,
	"examples":             true,
	"const":                true,
}

// SanitizeSchema normalizes an arbitrary JSON-Schema document to the subset
// the Responses backend accepts. It is idempotent: sanitize(sanitize(s)) ==
// sanitize(s) (§8 property 5), because every rule either removes a
// disallowed construct or replaces it with an already-canonical one.
func SanitizeSchema(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return emptyObjectSchema()
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return emptyObjectSchema()
	}
	sanitized := sanitizeValue(v)
	obj, ok := sanitized.(map[string]any)
	if !ok {
		sanitized = map[string]any{"type": "object", "properties": map[string]any{}}
		obj = sanitized.(map[string]any)
	}
	objType, hasType := obj["type"]
	isObjectLike := !hasType || objType == "object"
	switch {
	case isObjectLike && len(toProperties(obj)) == 0:
		sanitized = emptyObjectSchemaValue()
	case !isObjectLike:
		sanitized = wrapNonObject(obj)
	}
	out, err := json.Marshal(sanitized)
	if err != nil {
		return emptyObjectSchema()
	}
	return out
}

func toProperties(v any) map[string]any {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	props, _ := obj["properties"].(map[string]any)
	return props
}

func wrapNonObject(schema map[string]any) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": schema,
		},
		"required": []any{"input"},
	}
}

func emptyObjectSchema() json.RawMessage {
	b, _ := json.Marshal(emptyObjectSchemaValue())
	return b
}

func emptyObjectSchemaValue() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
		},
		"required": []any{"reason"},
	}
}

// sanitizeValue recurses through a decoded JSON-Schema tree applying every
// rule in §4.5.a. It only ever operates on already-decoded Go values, so
// recursive tree surgery (allOf merge, anyOf flattening) stays a plain
// structural transform rather than string-level JSON patching.
func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return sanitizeObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}

func sanitizeObject(obj map[string]any) map[string]any {
	obj = resolveRef(obj)
	obj = mergeAllOf(obj)
	obj = flattenAnyOf(obj)
	obj = collapseNullableType(obj)

	out := map[string]any{}
	for k, val := range obj {
		if disallowedKeywords[k] {
			continue
		}
		switch k {
		case "properties":
			props, _ := val.(map[string]any)
			sanitizedProps := map[string]any{}
			for pk, pv := range props {
				sanitizedProps[pk] = sanitizeValue(pv)
			}
			out[k] = sanitizedProps
		case "items":
			out[k] = sanitizeValue(val)
		case "required":
			out[k] = val // filtered below once properties are known
		default:
			out[k] = sanitizeValue(val)
		}
	}

	if props, ok := out["properties"].(map[string]any); ok {
		out["required"] = intersectRequired(out["required"], props)
	} else {
		delete(out, "required")
	}
	return out
}

// resolveRef replaces a $ref with an opaque object placeholder — the
// sanitizer never dereferences external schema documents.
func resolveRef(obj map[string]any) map[string]any {
	ref, ok := obj["$ref"].(string)
	if !ok {
		return obj
	}
	segments := strings.Split(ref, "/")
	last := segments[len(segments)-1]
	return map[string]any{
		"type":        "object",
		"description": "See: " + last,
	}
}

// mergeAllOf folds allOf branches into the parent: union of properties,
// union of required.
func mergeAllOf(obj map[string]any) map[string]any {
	branches, ok := obj["allOf"].([]any)
	if !ok {
		return obj
	}
	merged := map[string]any{"type": "object"}
	properties := map[string]any{}
	var required []any
	for _, b := range branches {
		bm, ok := b.(map[string]any)
		if !ok {
			continue
		}
		bm = resolveRef(bm)
		if bp, ok := bm["properties"].(map[string]any); ok {
			for k, v := range bp {
				properties[k] = v
			}
		}
		if br, ok := bm["required"].([]any); ok {
			required = append(required, br...)
		}
	}
	for k, v := range obj {
		if k == "allOf" {
			continue
		}
		merged[k] = v
	}
	merged["properties"] = properties
	if len(required) > 0 {
		merged["required"] = dedupeStrings(required)
	}
	return merged
}

// flattenAnyOf picks a single branch from anyOf/oneOf, preferring branches
// with properties, then items, then any typed branch, then untyped.
func flattenAnyOf(obj map[string]any) map[string]any {
	branches, key := anyOfBranches(obj)
	if branches == nil {
		return obj
	}
	best := selectBestBranch(branches)
	out := map[string]any{}
	for k, v := range obj {
		if k == key {
			continue
		}
		out[k] = v
	}
	if best != nil {
		for k, v := range best {
			out[k] = v
		}
	}
	return out
}

func anyOfBranches(obj map[string]any) ([]any, string) {
	if v, ok := obj["anyOf"].([]any); ok {
		return v, "anyOf"
	}
	if v, ok := obj["oneOf"].([]any); ok {
		return v, "oneOf"
	}
	return nil, ""
}

func selectBestBranch(branches []any) map[string]any {
	rank := func(b map[string]any) int {
		if _, ok := b["properties"]; ok {
			return 3
		}
		if _, ok := b["items"]; ok {
			return 2
		}
		if _, ok := b["type"]; ok {
			return 1
		}
		return 0
	}
	var best map[string]any
	bestRank := -1
	for _, b := range branches {
		bm, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if r := rank(bm); r > bestRank {
			best, bestRank = bm, r
		}
	}
	return best
}

// collapseNullableType turns type: [T, "null"] into type: T, choosing the
// first non-null entry.
func collapseNullableType(obj map[string]any) map[string]any {
	arr, ok := obj["type"].([]any)
	if !ok {
		return obj
	}
	for _, t := range arr {
		if s, ok := t.(string); ok && s != "null" {
			obj["type"] = s
			return obj
		}
	}
	obj["type"] = "object"
	return obj
}

func intersectRequired(required any, properties map[string]any) []any {
	arr, ok := required.([]any)
	if !ok {
		return nil
	}
	var out []any
	for _, r := range arr {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, exists := properties[name]; exists {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func dedupeStrings(in []any) []any {
	seen := map[string]bool{}
	var out []any
	for _, v := range in {
		s, ok := v.(string)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].(string) < out[j].(string) })
	return out
}
