package database

import (
	"fmt"
	"strings"
	"unicode"
)

// Parser splits a script into statements that a driver can execute one by one.
type Parser interface {
	Split(script string) ([]string, error)
}

// GenericParser splits on the current delimiter and honors client-side
// DELIMITER directives, the way the mysql client does.
type GenericParser struct{}

func NewParser() GenericParser {
	return GenericParser{}
}

func (p GenericParser) Split(script string) ([]string, error) {
	delimiter := ";"
	inQuote := false
	var result []string
	var current strings.Builder

	flush := func() {
		stmt := trimMarginComments(current.String())
		stmt = strings.TrimSpace(stripLineComments(stmt))
		if stmt != "" {
			result = append(result, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.SplitAfter(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if fields := strings.Fields(trimmed); !inQuote && len(fields) > 0 && strings.EqualFold(fields[0], "DELIMITER") {
			if len(fields) != 2 {
				return nil, fmt.Errorf("malformed DELIMITER directive: %q", trimmed)
			}
			if strings.TrimSpace(stripLineComments(current.String())) != "" {
				return nil, fmt.Errorf("DELIMITER directive inside an unterminated statement: %q", trimmed)
			}
			current.Reset()
			delimiter = fields[1]
			continue
		}

		rest := line
		for {
			var i int
			i, inQuote = indexOutsideQuotes(rest, delimiter, inQuote)
			if i < 0 {
				current.WriteString(rest)
				break
			}
			current.WriteString(rest[:i])
			flush()
			rest = rest[i+len(delimiter):]
		}
	}

	if strings.TrimSpace(stripLineComments(current.String())) != "" {
		return nil, fmt.Errorf("unterminated statement at end of script: %q", firstLine(current.String()))
	}
	return result, nil
}

// indexOutsideQuotes finds delimiter in line, ignoring occurrences inside
// single-quoted strings or after a "--" comment. inQuote tells whether line
// starts inside a string; the quoting state at the returned position (or at the
// end of the line when nothing was found) is returned with it.
func indexOutsideQuotes(line string, delimiter string, inQuote bool) (int, bool) {
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\'':
			inQuote = !inQuote
		case inQuote:
		case strings.HasPrefix(line[i:], "--"):
			return -1, inQuote
		case strings.HasPrefix(line[i:], delimiter):
			return i, inQuote
		}
	}
	return -1, inQuote
}

func stripLineComments(stmt string) string {
	var lines []string
	for _, line := range strings.Split(stmt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// trimMarginComments pulls out any leading or trailing comments from a raw sql query.
// This function also trims leading (if there's a comment) and trailing whitespace.
func trimMarginComments(sql string) string {
	trailingStart := trailingCommentStart(sql)
	leadingEnd := leadingCommentEnd(sql[:trailingStart])
	return strings.TrimFunc(sql[leadingEnd:trailingStart], unicode.IsSpace)
}

// trailingCommentStart returns the first index of trailing comments.
// If there are no trailing comments, returns the length of the input string.
func trailingCommentStart(text string) (start int) {
	hasComment := false
	reducedLen := len(text)
	for reducedLen > 0 {
		// Eat up any whitespace. Leading whitespace will be considered part of
		// the trailing comments.
		nextReducedLen := strings.LastIndexFunc(text[:reducedLen], isNonSpace) + 1
		if nextReducedLen == 0 {
			break
		}
		reducedLen = nextReducedLen
		if reducedLen < 4 || text[reducedLen-2:reducedLen] != "*/" {
			break
		}

		startCommentPos := strings.LastIndex(text[:reducedLen-2], "/*")
		if startCommentPos < 0 {
			break
		}

		hasComment = true
		reducedLen = startCommentPos
	}

	if hasComment {
		return reducedLen
	}
	return len(text)
}

// leadingCommentEnd returns the first index after all leading comments, or
// 0 if there are no leading comments.
func leadingCommentEnd(text string) (end int) {
	hasComment := false
	pos := 0
	for pos < len(text) {
		nextVisibleOffset := strings.IndexFunc(text[pos:], isNonSpace)
		if nextVisibleOffset < 0 {
			break
		}
		pos += nextVisibleOffset
		remainingText := text[pos:]

		if len(remainingText) < 4 || remainingText[:2] != "/*" {
			break
		}
		commentLength := 4 + strings.Index(remainingText[2:], "*/")
		if commentLength < 4 {
			// Missing end comment :/
			break
		}

		hasComment = true
		pos += commentLength
	}

	if hasComment {
		return pos
	}
	return 0
}

func isNonSpace(r rune) bool {
	return !unicode.IsSpace(r)
}
