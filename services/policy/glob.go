package policy

import (
	"regexp"
	"strings"
	"sync"
)

// globCache holds compiled shell patterns; policies reuse the same few
// patterns for every decision.
var globCache sync.Map

// matchGlob matches value against a shell-style pattern the way fnmatch
// does: "*" crosses "/", "[!...]" negates a set, an unclosed "[" is literal
// and backslash has no special meaning.
func matchGlob(pattern, value string) bool {
	if re, ok := globCache.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(value)
	}
	re, err := regexp.Compile(translateGlob(pattern))
	if err != nil {
		// a reversed range can never match
		return false
	}
	globCache.Store(pattern, re)
	return re.MatchString(value)
}

func translateGlob(pattern string) string {
	var b strings.Builder
	b.WriteString(`^(?s:`)
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; c {
		case '*':
			for i+1 < len(runes) && runes[i+1] == '*' {
				i++
			}
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			j := i + 1
			if j < len(runes) && runes[j] == '!' {
				j++
			}
			if j < len(runes) && runes[j] == ']' {
				j++
			}
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(translateSet(runes[i+1 : j]))
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`)$`)
	return b.String()
}

// translateSet turns the body of a bracket expression into an RE2 class
func translateSet(set []rune) string {
	var b strings.Builder
	b.WriteByte('[')
	if len(set) > 0 && set[0] == '!' {
		b.WriteByte('^')
		set = set[1:]
	}
	for k, c := range set {
		switch {
		case c == '\\' || c == '[' || c == ']':
			b.WriteByte('\\')
			b.WriteRune(c)
		case c == '^' && k == 0:
			b.WriteString(`\^`)
		default:
			b.WriteRune(c)
		}
	}
	b.WriteByte(']')
	return b.String()
}
