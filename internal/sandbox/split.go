package sandbox

import "errors"

var errUnbalancedQuote = errors.New("unbalanced quote")

// splitShell tokenizes a command the way sh would split words: whitespace
// separates tokens, single and double quotes group, backslash escapes the
// next rune outside single quotes. Operators are not treated specially;
// the policy only needs basenames, not a full parse.
func splitShell(s string) ([]string, error) {
	var tokens []string
	var cur []rune
	inToken := false

	const (
		stNone = iota
		stSingle
		stDouble
	)
	state := stNone
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			cur = append(cur, r)
			inToken = true
			escaped = false
		case state == stSingle:
			if r == '\'' {
				state = stNone
			} else {
				cur = append(cur, r)
			}
		case state == stDouble:
			switch r {
			case '"':
				state = stNone
			case '\\':
				escaped = true
			default:
				cur = append(cur, r)
			}
		case r == '\\':
			escaped = true
		case r == '\'':
			state = stSingle
			inToken = true
		case r == '"':
			state = stDouble
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if inToken {
				tokens = append(tokens, string(cur))
				cur = cur[:0]
				inToken = false
			}
		default:
			cur = append(cur, r)
			inToken = true
		}
	}

	if state != stNone || escaped {
		return nil, errUnbalancedQuote
	}
	if inToken {
		tokens = append(tokens, string(cur))
	}
	return tokens, nil
}
