// Package mocktpl expands declarative randomization directives in mock
// bodies.
//
// DESIGN: Bodies are stored as-authored and expanded on every serve, so each
// response carries fresh random values. Two directive forms are supported:
//
//   - Placeholder tokens inside string values: @id, @image, @goodsImage,
//     @avatar, @postImage, @boolean, @integer(min,max), @string(n).
//   - Key directives: "count|1-10": 0 yields a random integer in [1,10];
//     "list|3": [tpl] and "list|1-5": [tpl] replicate the first array
//     element, expanding it freshly per copy.
//
// Expansion is a pure transformation of the parsed JSON tree; nothing is
// persisted. Non-JSON bodies pass through untouched.
package mocktpl

import (
	"encoding/json"
	mathrand "math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	placeholderRe  = regexp.MustCompile(`@(goodsImage|postImage|avatar|image|id|boolean|integer\(\d+,\s*\d+\)|string\(\d+\))`)
	keyDirectiveRe = regexp.MustCompile(`^(.*)\|(\d+)(?:-(\d+))?$`)
)

// Expand parses body as JSON, expands directives, and returns the resulting
// value. A body that is not a JSON object or array is returned as-is.
func Expand(body string) any {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return body
	}
	switch v.(type) {
	case map[string]any, []any:
		return ExpandValue(v)
	}
	return v
}

// ExpandValue expands directives in an already-parsed JSON tree.
func ExpandValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key, expanded, ok := expandKeyDirective(k, val)
			if ok {
				out[key] = expanded
				continue
			}
			out[k] = ExpandValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ExpandValue(item)
		}
		return out
	case string:
		return expandString(t)
	default:
		return v
	}
}

// expandKeyDirective handles "name|n" and "name|min-max" keys. Returns the
// bare key name and the generated value when the key carries a directive.
func expandKeyDirective(key string, val any) (string, any, bool) {
	m := keyDirectiveRe.FindStringSubmatch(key)
	if m == nil {
		return key, nil, false
	}
	name := m[1]
	lo, _ := strconv.Atoi(m[2])
	hi := lo
	if m[3] != "" {
		hi, _ = strconv.Atoi(m[3])
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	n := lo
	if hi > lo {
		n = lo + mathrand.IntN(hi-lo+1)
	}

	switch t := val.(type) {
	case []any:
		if len(t) == 0 {
			return name, []any{}, true
		}
		out := make([]any, n)
		for i := range out {
			out[i] = ExpandValue(t[0])
		}
		return name, out, true
	case float64, json.Number:
		return name, n, true
	default:
		// Directive on an unsupported value type: keep the value, drop the
		// directive suffix from the key.
		return name, ExpandValue(val), true
	}
}

func expandString(s string) any {
	if !strings.Contains(s, "@") {
		return s
	}
	// A string that is exactly @boolean or @integer(...) becomes a typed
	// value rather than text.
	switch {
	case s == "@boolean":
		return mathrand.IntN(2) == 1
	case strings.HasPrefix(s, "@integer(") && strings.HasSuffix(s, ")") && placeholderRe.FindString(s) == s:
		return randomInt(s)
	}
	return placeholderRe.ReplaceAllStringFunc(s, replacePlaceholder)
}

func replacePlaceholder(token string) string {
	switch {
	case token == "@id":
		return uuid.NewString()
	case token == "@image":
		return pick(landscapeImageURLs)
	case token == "@goodsImage":
		return pick(goodsImageURLs)
	case token == "@avatar":
		return pick(avatarURLs)
	case token == "@postImage":
		return pick(landscapeImageURLs)
	case token == "@boolean":
		if mathrand.IntN(2) == 1 {
			return "true"
		}
		return "false"
	case strings.HasPrefix(token, "@integer("):
		return strconv.Itoa(randomInt(token))
	case strings.HasPrefix(token, "@string("):
		n, _ := strconv.Atoi(token[len("@string(") : len(token)-1])
		return randomString(n)
	}
	return token
}

// randomInt parses "@integer(min,max)" and returns a value in [min,max].
func randomInt(token string) int {
	args := token[len("@integer(") : len(token)-1]
	loStr, hiStr, _ := strings.Cut(args, ",")
	lo, _ := strconv.Atoi(strings.TrimSpace(loStr))
	hi, _ := strconv.Atoi(strings.TrimSpace(hiStr))
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + mathrand.IntN(hi-lo+1)
}

const stringCandidates = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) string {
	if n <= 0 {
		n = 8
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = stringCandidates[mathrand.IntN(len(stringCandidates))]
	}
	return string(b)
}

func pick(set []string) string {
	return set[mathrand.IntN(len(set))]
}
