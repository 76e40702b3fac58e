package smtp

import (
	"errors"
	"strings"
)

// Sentinel errors for session-fatal conditions.
var (
	// ErrMessageTooLarge is returned when a DATA body exceeds the
	// configured maximum message size.
	ErrMessageTooLarge = errors.New("message size exceeds maximum")
)

// splitCommand parses one command line into its verb and arguments.
// The line is trimmed of surrounding whitespace and split at the first
// space; the verb is upper-cased, the arguments keep their original
// form. An empty line yields an empty verb.
func splitCommand(line string) (verb, args string) {
	verb, args, _ = strings.Cut(strings.TrimSpace(line), " ")
	return strings.ToUpper(verb), args
}

// cutAddress extracts the address from MAIL or RCPT arguments. prefix
// is "FROM:" or "TO:", matched case-insensitively at the start of args.
// The address is everything after the prefix colon, trimmed of
// whitespace, with a single leading '<' and trailing '>' removed.
// ok is false when args does not carry the prefix at all; an address
// that is empty after stripping is returned as "".
func cutAddress(args, prefix string) (addr string, ok bool) {
	if len(args) < len(prefix) || !strings.EqualFold(args[:len(prefix)], prefix) {
		return "", false
	}
	addr = strings.TrimSpace(args[len(prefix):])
	addr = strings.TrimPrefix(addr, "<")
	addr = strings.TrimSuffix(addr, ">")
	return addr, true
}

// commandLabel maps a verb to a bounded label value for the command
// counter. Unrecognized verbs collapse to "unknown" so client garbage
// cannot grow the label set.
func commandLabel(verb string) string {
	switch verb {
	case "HELO", "EHLO", "STARTTLS", "MAIL", "RCPT", "DATA", "RSET", "NOOP", "QUIT":
		return verb
	default:
		return "unknown"
	}
}
