// Package extract pulls JSON out of free-form model output.
//
// Precedence, first match wins:
//  1. <think>/<thinking> blocks are removed, then the contents of each
//     Markdown code fence are scanned in order.
//  2. The whole text is scanned for balanced brackets/braces; the first
//     candidate of the requested kind that is valid JSON is returned.
//     Arrays made only of integers ("[1]", "[2, 3]") are citation markers
//     and never match.
//  3. Citation markers are stripped from the text and it is scanned again,
//     which recovers JSON with markers embedded in values.
//  4. "[]" or "{}" is returned.
//
// Decode walks the same candidates and keeps the first one that unmarshals
// into the target type.
package extract

import (
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"
)

// Kind selects the top-level JSON shape to look for.
type Kind int

const (
	Array Kind = iota
	Object
)

// ErrNotFound is returned by Decode when the text holds no JSON of the requested kind.
var ErrNotFound = errors.New("no JSON found in text")

var (
	thinkRe    = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)
	fenceRe    = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\\r?\\n?(.*?)```")
	citationRe = regexp.MustCompile(`\[\^?\d+(?:\s*[,\-]\s*\d+)*\]|【[^】]*】|\[citation:\s*\d+\]|\[cite:\s*\d+\]`)
	intArrayRe = regexp.MustCompile(`^\[\s*\^?\d+(?:\s*,\s*\d+)*\s*\]$`)
)

// Find returns the first JSON value of the given kind in text.
func Find(text string, kind Kind) (string, bool) {
	var found string
	each(text, kind, func(cand string) bool {
		found = cand
		return false
	})
	return found, found != ""
}

// each calls yield with every JSON candidate of the given kind, in
// precedence order, until yield returns false.
func each(text string, kind Kind, yield func(string) bool) {
	text = thinkRe.ReplaceAllString(text, "")

	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		if !scan(m[1], kind, yield) {
			return
		}
	}

	if !scan(text, kind, yield) {
		return
	}

	stripped := citationRe.ReplaceAllString(text, "")
	if stripped != text {
		scan(stripped, kind, yield)
	}
}

// JSON returns the first JSON value of the given kind, or "[]" / "{}" when
// there is none. It never panics.
func JSON(text string, kind Kind) string {
	if s, ok := Find(text, kind); ok {
		return s
	}
	if kind == Object {
		return "{}"
	}
	return "[]"
}

// ArrayText is JSON(text, Array).
func ArrayText(text string) string { return JSON(text, Array) }

// ObjectText is JSON(text, Object).
func ObjectText(text string) string { return JSON(text, Object) }

// Decode unmarshals into v the first candidate of the given kind that fits
// v's type. Prose that quotes some other JSON before the answer therefore
// does not hide the answer. When no candidate fits, the first unmarshal
// error is returned.
func Decode(text string, kind Kind, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &json.InvalidUnmarshalError{Type: reflect.TypeOf(v)}
	}

	var firstErr error
	decoded := false
	each(text, kind, func(cand string) bool {
		// Decode into a fresh value so a failed attempt leaves v untouched.
		fresh := reflect.New(rv.Elem().Type())
		if err := json.Unmarshal([]byte(cand), fresh.Interface()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		rv.Elem().Set(fresh.Elem())
		decoded = true
		return false
	})
	switch {
	case decoded:
		return nil
	case firstErr != nil:
		return firstErr
	default:
		return ErrNotFound
	}
}

// Truncate shortens model output for log lines.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// scan yields each valid candidate of the given kind in text and reports
// whether the caller wants more.
func scan(text string, kind Kind, yield func(string) bool) bool {
	open := byte('[')
	if kind == Object {
		open = '{'
	}
	for i := 0; i < len(text); i++ {
		if text[i] != open {
			continue
		}
		end := matchBalanced(text, i)
		if end < 0 {
			continue
		}
		cand := strings.TrimSpace(text[i : end+1])
		if !json.Valid([]byte(cand)) {
			continue
		}
		if kind == Array && intArrayRe.MatchString(cand) {
			continue
		}
		if !yield(cand) {
			return false
		}
	}
	return true
}

// matchBalanced returns the index closing the bracket at start, skipping
// over JSON string literals, or -1.
func matchBalanced(text string, start int) int {
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
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i
			}
			if depth < 0 {
				return -1
			}
		}
	}
	return -1
}
