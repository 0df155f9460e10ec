package sessions

import "strings"

const (
	titleLimit = 30

	// DefaultTitle names sessions whose first message carried no text.
	DefaultTitle = "New Chat"

	// ImageOnlyContent is the content stored for a user message that only
	// carries an image.
	ImageOnlyContent = "[Image provided]"
)

// Title derives a session title from the first user text.
func Title(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultTitle
	}

	runes := []rune(text)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return text
}
