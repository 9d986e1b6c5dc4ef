package classifier

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedResponse = errors.New("malformed vision response")

// MalformedResponseError carries the raw model output for logging.
type MalformedResponseError struct {
	Raw string
}

func (e *MalformedResponseError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return fmt.Sprintf("%s: %q", ErrMalformedResponse, raw)
}

func (e *MalformedResponseError) Unwrap() error {
	return ErrMalformedResponse
}

// ParseResponse turns a vision response into an Event. The first line
// selects the variant; everything after it, trimmed, is the description.
func ParseResponse(raw string) (Event, error) {
	text := strings.TrimSpace(raw)
	first, rest, _ := strings.Cut(text, "\n")
	rest = strings.TrimSpace(rest)

	first = strings.Trim(strings.TrimSpace(first), "*")
	first = strings.TrimRight(strings.TrimSpace(first), ":.")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return nil, &MalformedResponseError{Raw: raw}
	}

	switch strings.ToUpper(strings.TrimRight(fields[0], ":")) {
	case "ALARM":
		if kind := token(fields[1:]); kind != "" {
			return Alarm{Kind: kind, Description: rest}, nil
		}
	case "OBSERVATION":
		if label := token(fields[1:]); label != "" {
			return Observation{Label: label, Description: rest}, nil
		}
	case "NOTHING":
		if len(fields) >= 3 && strings.EqualFold(fields[1], "TO") && strings.EqualFold(fields[2], "REPORT") {
			inline := strings.TrimLeft(strings.Join(fields[3:], " "), "-:, ")
			return Nothing{Description: joinNonEmpty(inline, rest)}, nil
		}
	}

	return nil, &MalformedResponseError{Raw: raw}
}

func token(words []string) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ":.,")
		if w != "" {
			parts = append(parts, strings.ToUpper(w))
		}
	}
	return strings.Join(parts, "_")
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}
