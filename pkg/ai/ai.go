package ai

import (
	"context"
	"strings"
)

// AiInterface is a single-shot text model.
type AiInterface interface {
	Name() string
	HandleText(ctx context.Context, msg string) (string, error)
}

// StripCodeFence removes a ```json ... ``` wrapper that models add even when
// asked not to.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
