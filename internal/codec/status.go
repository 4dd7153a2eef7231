package codec

import "strings"

// StatusKind enumerates the documented game states the device reports
type StatusKind int

const (
	StatusUnknown StatusKind = iota
	StatusIdle
	StatusReady
	StatusPlaying
	StatusCompleted
	StatusError
)

var statusWords = map[string]StatusKind{
	"IDLE":      StatusIdle,
	"READY":     StatusReady,
	"PLAYING":   StatusPlaying,
	"COMPLETED": StatusCompleted,
	"ERROR":     StatusError,
}

func (k StatusKind) String() string {
	switch k {
	case StatusIdle:
		return "idle"
	case StatusReady:
		return "ready"
	case StatusPlaying:
		return "playing"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a decoded status payload. Raw is only meaningful for StatusUnknown,
// but always holds the trimmed text the device sent.
type Status struct {
	Kind StatusKind
	Raw  string
}

// ParseStatus maps status text onto the closed vocabulary.
// Matching is case-insensitive and tolerates a trailing "!" ("COMPLETED!").
func ParseStatus(text string) Status {
	word := strings.ToUpper(strings.TrimRight(strings.TrimSpace(text), "!"))
	word = strings.TrimPrefix(word, "STATUS: ")
	if kind, ok := statusWords[word]; ok {
		return Status{Kind: kind, Raw: text}
	}
	return Status{Kind: StatusUnknown, Raw: text}
}

func (s Status) String() string {
	if s.Kind == StatusUnknown {
		return "unknown(" + s.Raw + ")"
	}
	return s.Kind.String()
}
