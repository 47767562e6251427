package command

import (
	"errors"
	"strings"
)

var (
	errUnterminatedQuote = errors.New("unterminated quote")
	errTrailingBackslash = errors.New("trailing backslash")
)

// Tokenize splits line into words using shell-like rules. Whitespace
// separates words and single quotes preserve their contents literally.
// Inside double quotes a backslash escapes only \ and ". An unquoted
// backslash escapes the next character. Quotes may appear mid-word, so
// args='{"a":1}' yields the single token args={"a":1}.
func Tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inWord  bool
		escaped bool
		quote   rune
	)

	for _, r := range line {
		switch {
		case escaped:
			if quote == '"' && r != '"' && r != '\\' {
				cur.WriteRune('\\')
			}
			cur.WriteRune(r)
			escaped = false

		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}

		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				cur.WriteRune(r)
			}

		case r == '\'' || r == '"':
			quote = r
			inWord = true

		case r == '\\':
			escaped = true
			inWord = true

		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inWord {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inWord = false
			}

		default:
			cur.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, errUnterminatedQuote
	}
	if escaped {
		return nil, errTrailingBackslash
	}
	if inWord {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
