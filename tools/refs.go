package tools

import (
	"regexp"
	"sort"
	"strings"
)

var (
	stringLiteral = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
	helperCall    = regexp.MustCompile(`_\.(?:answered|has|count)\(\s*["']([^"']+)["']`)
	responsesKey  = regexp.MustCompile(`_\.responses(?:\[\s*["']([^"']+)["']\s*\]|\.([A-Za-z_$][\w$]*))`)
	identifier    = regexp.MustCompile(`[A-Za-z_$][\w$]*`)

	// builtins are names an expression can use that aren't answer
	// keys.
	builtins = map[string]bool{
		"_": true, "sleep": true,
		"true": true, "false": true, "null": true, "undefined": true,
		"NaN": true, "Infinity": true, "this": true,
		"typeof": true, "instanceof": true, "new": true, "in": true, "of": true, "void": true, "delete": true,
		"var": true, "let": true, "const": true, "function": true, "return": true,
		"if": true, "else": true, "for": true, "while": true, "do": true, "break": true, "continue": true,
		"Math": true, "JSON": true, "Date": true, "String": true, "Number": true, "Boolean": true,
		"Array": true, "Object": true, "RegExp": true,
		"parseInt": true, "parseFloat": true, "isNaN": true, "isFinite": true,
	}
)

// References returns the answer keys that the expression appears to
// read, sorted and without duplicates.
//
// The scan is lexical.  It finds bare identifiers, keys given to the
// _.answered, _.has, and _.count helpers, and _.responses lookups.
// Property names (after a '.') and object literal keys are skipped.
func References(expr string) []string {
	refs := make(map[string]bool)

	for _, m := range helperCall.FindAllStringSubmatch(expr, -1) {
		refs[m[1]] = true
	}
	for _, m := range responsesKey.FindAllStringSubmatch(expr, -1) {
		if m[1] != "" {
			refs[m[1]] = true
		} else {
			refs[m[2]] = true
		}
	}

	// Blank out string literals so their contents aren't
	// mistaken for identifiers.
	src := stringLiteral.ReplaceAllStringFunc(expr, func(s string) string {
		return strings.Repeat(" ", len(s))
	})

	for _, loc := range identifier.FindAllStringIndex(src, -1) {
		at, end := loc[0], loc[1]
		if 0 < at {
			prev := src[at-1]
			if prev == '.' || ('0' <= prev && prev <= '9') {
				continue
			}
		}
		name := src[at:end]
		if builtins[name] {
			continue
		}
		if isLiteralKey(src, at, end) {
			continue
		}
		refs[name] = true
	}

	return keysToStringSlice(refs)
}

// isLiteralKey reports whether the identifier at src[at:end] is a key
// in an object literal like "{a: 1, b: 2}".
func isLiteralKey(src string, at, end int) bool {
	after := strings.TrimLeft(src[end:], " \t\n")
	if !strings.HasPrefix(after, ":") {
		return false
	}
	before := strings.TrimRight(src[:at], " \t\n")
	if before == "" {
		return false
	}
	switch before[len(before)-1] {
	case '{', ',':
		return true
	}
	return false
}

// keysToStringSlice returns the map's keys in sorted order.
// Optionally, it can add a default value if the map is empty.
func keysToStringSlice(m map[string]bool, defaultValue ...string) []string {
	list := make([]string, 0, len(m))
	for key := range m {
		list = append(list, key)
	}
	sort.Strings(list)

	if len(list) == 0 && len(defaultValue) > 0 {
		return []string{defaultValue[0]}
	}

	return list
}
