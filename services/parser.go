package services

import "strings"

// ParseLine splits one delimited line into trimmed fields.
//
// A double quote toggles the in-quotes state and is never emitted; a
// delimiter inside quotes is kept as text. An unterminated quote swallows
// the rest of the line only, since the state is local to the call. The
// result always holds at least one (possibly empty) field.
func ParseLine(line string, delim rune) []string {
	fields := make([]string, 0, 16)
	var cur strings.Builder
	inQuotes := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, strings.TrimSpace(cur.String()))
}
