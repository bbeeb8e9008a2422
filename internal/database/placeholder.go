package database

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/koustreak/xdb/internal/errs"
)

// Style controls which placeholder syntax a compiled statement uses.
type Style int

const (
	// StyleQuestion uses ? placeholders (MySQL).
	StyleQuestion Style = iota

	// StyleDollar uses $1, $2, … placeholders (PostgreSQL).
	StyleDollar
)

// Compiled is a statement rewritten into a driver's native placeholder style.
type Compiled struct {
	// SQL is the rewritten statement text.
	SQL string

	// Params holds, for each native placeholder in order, the key whose
	// value fills it. A named placeholder used twice appears twice.
	Params []string

	// Named reports whether the source used :name placeholders.
	Named bool
}

// Has reports whether key fills at least one placeholder.
func (c *Compiled) Has(key string) bool {
	key = NormalizeKey(key)
	for _, p := range c.Params {
		if p == key {
			return true
		}
	}
	return false
}

// Args lays out bound values in native placeholder order.
// Every placeholder must have a value.
func (c *Compiled) Args(bound map[string]any) ([]any, error) {
	args := make([]any, len(c.Params))
	for i, key := range c.Params {
		v, ok := bound[key]
		if !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "no value bound to placeholder %q", displayKey(key, c.Named))
		}
		args[i] = v
	}
	return args, nil
}

// NormalizeKey strips the leading colon of a named key.
func NormalizeKey(key string) string {
	return strings.TrimPrefix(key, ":")
}

// IsPositionalKey reports whether key addresses a 1-based position.
func IsPositionalKey(key string) bool {
	n, err := strconv.Atoi(key)
	return err == nil && n > 0
}

func displayKey(key string, named bool) string {
	if named {
		return ":" + key
	}
	return key
}

// Compile rewrites :name, ? and $n placeholders into style.
//
// Quoted strings, quoted identifiers, comments, PostgreSQL :: casts and
// dollar-quoted bodies are copied untouched. Mixing named and positional
// placeholders in one statement is rejected.
//
// For StyleDollar a ? in a statement that uses :name placeholders is the
// jsonb operator and is copied as is, and ?? always stands for a literal ?.
//
//	Compile(`SELECT * FROM t WHERE a = :a AND b = :a`, StyleDollar)
//	// SQL    => SELECT * FROM t WHERE a = $1 AND b = $2
//	// Params => ["a", "a"]
func Compile(text string, style Style) (*Compiled, error) {
	if style == StyleDollar {
		if c, err := compile(text, style, true); err == nil && c.Named {
			return c, nil
		}
	}
	return compile(text, style, false)
}

func compile(text string, style Style, questionIsOperator bool) (*Compiled, error) {
	c := &Compiled{}
	out := make([]byte, 0, len(text)+16)
	positional := false
	next := 1

	emit := func(key string) {
		c.Params = append(c.Params, key)
		if style == StyleDollar {
			out = append(out, '$')
			out = strconv.AppendInt(out, int64(len(c.Params)), 10)
		} else {
			out = append(out, '?')
		}
	}

	i := 0
	for i < len(text) {
		if j, ok, err := skipLiteral(text, i, style); err != nil {
			return nil, err
		} else if ok {
			out = append(out, text[i:j]...)
			i = j
			continue
		}

		r, w := utf8.DecodeRuneInString(text[i:])
		switch r {
		case '$':
			if digits, end := parseDigits(text, i+1); digits != "" {
				if c.Named {
					return nil, errMixed()
				}
				positional = true
				emit(digits)
				i = end
				continue
			}
		case '?':
			if style == StyleDollar && strings.HasPrefix(text[i:], "??") {
				out = append(out, '?')
				i += 2
				continue
			}
			if style == StyleDollar && questionIsOperator {
				break
			}
			if c.Named {
				return nil, errMixed()
			}
			positional = true
			emit(strconv.Itoa(next))
			next++
			i += w
			continue
		case ':':
			if strings.HasPrefix(text[i:], "::") {
				out = append(out, ':', ':')
				i += 2
				continue
			}
			if name, end := parseIdent(text, i+1); name != "" {
				if positional {
					return nil, errMixed()
				}
				c.Named = true
				emit(name)
				i = end
				continue
			}
		}
		out = append(out, text[i:i+w]...)
		i += w
	}

	c.SQL = string(out)
	return c, nil
}

// Code returns text with every quoted string, quoted identifier, comment
// and dollar-quoted body replaced by a single space, leaving only the
// statement's own keywords and operators.
func Code(text string, style Style) (string, error) {
	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		j, ok, err := skipLiteral(text, i, style)
		if err != nil {
			return "", err
		}
		if ok {
			b.WriteByte(' ')
			i = j
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String(), nil
}

// skipLiteral reports whether a literal or comment starts at i and, if so,
// the index just past it.
func skipLiteral(s string, i int, style Style) (int, bool, error) {
	switch s[i] {
	case '\'', '"', '`':
		quote := s[i]
		backslash := quote != '`' && style == StyleQuestion
		if quote == '\'' && style == StyleDollar && isEscapeString(s, i) {
			backslash = true
		}
		j, err := skipQuoted(s, i+1, quote, backslash)
		if err != nil {
			return 0, false, err
		}
		return j, true, nil
	case '-':
		if strings.HasPrefix(s[i:], "--") {
			return skipLineComment(s, i+2), true, nil
		}
	case '/':
		if strings.HasPrefix(s[i:], "/*") {
			j, err := skipBlockComment(s, i+2)
			if err != nil {
				return 0, false, err
			}
			return j, true, nil
		}
	case '$':
		if style == StyleDollar {
			return skipDollarQuoted(s, i)
		}
	}
	return 0, false, nil
}

// isEscapeString reports whether the quote at i opens a PostgreSQL E'...'
// string, in which backslash escapes apply.
func isEscapeString(s string, i int) bool {
	if i == 0 || (s[i-1] != 'E' && s[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentChar(rune(s[i-2]))
}

func errMixed() error {
	return errs.New(errs.ErrKindInvalidInput, "statement mixes named and positional placeholders")
}

// skipQuoted returns the index just past the closing quote. Doubled quotes
// escape, and so does a backslash when backslash is set.
func skipQuoted(s string, i int, quote byte, backslash bool) (int, error) {
	for i < len(s) {
		if backslash && s[i] == '\\' {
			i += 2
			continue
		}
		if s[i] == quote {
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, errs.Newf(errs.ErrKindInvalidInput, "unterminated %c-quoted text", quote)
}

func skipLineComment(s string, i int) int {
	for i < len(s) {
		if s[i] == '\n' {
			return i + 1
		}
		i++
	}
	return i
}

func skipBlockComment(s string, i int) (int, error) {
	for i < len(s)-1 {
		if s[i] == '*' && s[i+1] == '/' {
			return i + 2, nil
		}
		i++
	}
	return 0, errs.New(errs.ErrKindInvalidInput, "unterminated block comment")
}

// skipDollarQuoted handles $$...$$ and $tag$...$tag$ (PostgreSQL).
func skipDollarQuoted(s string, i int) (int, bool, error) {
	j := i + 1
	if j < len(s) && s[j] >= '0' && s[j] <= '9' {
		return 0, false, nil // $1 is a placeholder, never a tag
	}
	for j < len(s) && s[j] != '$' && isIdentChar(rune(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false, nil
	}
	tag := s[i : j+1]
	idx := strings.Index(s[j+1:], tag)
	if idx < 0 {
		return 0, true, errs.New(errs.ErrKindInvalidInput, "unterminated dollar-quoted text")
	}
	return j + 1 + idx + len(tag), true, nil
}

func isIdentChar(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

// parseIdent reads a placeholder name; it must not start with a digit.
func parseIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !isIdentChar(r) || (i == start && unicode.IsDigit(r)) {
			break
		}
		i += w
	}
	return s[start:i], i
}

func parseDigits(s string, i int) (string, int) {
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[start:i], i
}
