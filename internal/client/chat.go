package client

import "unicode/utf8"

// WrapChat formats a chat line for the HUD. When name and text together are
// longer than over, the text is cut into chunks of at most width characters
// and each chunk gets the "<name>: " prefix.
func WrapChat(name, text string, over, width int) []string {
	prefix := name + ": "
	if width <= 0 || text == "" || utf8.RuneCountInString(name)+utf8.RuneCountInString(text) <= over {
		return []string{prefix + text}
	}
	runes := []rune(text)
	lines := make([]string, 0, len(runes)/width+1)
	for len(runes) > 0 {
		n := width
		if n > len(runes) {
			n = len(runes)
		}
		lines = append(lines, prefix+string(runes[:n]))
		runes = runes[n:]
	}
	return lines
}
