// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package interpret

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fencePattern         = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
)

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// repair fixes the formatting mistakes models commonly make in JSON output:
// code fences, unquoted or half-quoted keys, trailing commas and raw control
// characters inside strings.
func repair(s string) string {
	s = stripFences(s)
	s = quoteKeys(s)
	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	return escapeControlChars(s)
}

// quoteKeys adds missing quotes around object keys. It handles keys with no
// quotes at all ({reply: ...}) and keys missing only the opening quote
// ({reply": ...}). Text inside string literals is left untouched.
func quoteKeys(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in)+16)
	inString := false
	escaped := false

	for i := 0; i < len(in); i++ {
		ch := in[i]
		if inString {
			out = append(out, ch)
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

		out = append(out, ch)
		if ch == '"' {
			inString = true
			continue
		}
		if ch != '{' && ch != ',' {
			continue
		}

		j := i + 1
		for j < len(in) && isSpace(in[j]) {
			j++
		}
		k := j
		for k < len(in) && isKeyRune(in[k]) {
			k++
		}
		if k == j || !isLetter(in[j]) {
			continue
		}

		end := k
		for end < len(in) && isSpace(in[end]) {
			end++
		}
		switch {
		case end+1 < len(in) && in[k] == '"' && in[k+1] == ':':
			// key": -> "key":
			out = append(out, in[i+1:j]...)
			out = append(out, '"')
			out = append(out, in[j:k+1]...)
			i = k
		case end < len(in) && in[end] == ':':
			// key: -> "key":
			out = append(out, in[i+1:j]...)
			out = append(out, '"')
			out = append(out, in[j:k]...)
			out = append(out, '"')
			i = k - 1
		}
	}
	return string(out)
}

// escapeControlChars escapes raw control characters that appear inside
// string literals, which encoding/json rejects.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false

	for _, ch := range s {
		if !inString {
			if ch == '"' {
				inString = true
			}
			b.WriteRune(ch)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteRune(ch)
		case ch == '\\':
			escaped = true
			b.WriteRune(ch)
		case ch == '"':
			inString = false
			b.WriteRune(ch)
		case ch == '\n':
			b.WriteString(`\n`)
		case ch == '\r':
			b.WriteString(`\r`)
		case ch == '\t':
			b.WriteString(`\t`)
		case ch < 0x20:
			fmt.Fprintf(&b, `\u%04x`, ch)
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isKeyRune(r rune) bool {
	return isLetter(r) || r == '_' || (r >= '0' && r <= '9')
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
