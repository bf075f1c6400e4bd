package passage

import "strings"

// WindowSize is the default split length, in words (§4.2).
const WindowSize = 100

// Split breaks cleaned body text into word windows of size windowSize with
// zero overlap. A body shorter than the window is emitted whole; the final
// window may be shorter than windowSize. "Word" is a whitespace-delimited
// token.
func Split(cleaned string, windowSize int) []string {
	if windowSize <= 0 {
		windowSize = WindowSize
	}
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return nil
	}

	var windows []string
	for start := 0; start < len(words); start += windowSize {
		end := start + windowSize
		if end > len(words) {
			end = len(words)
		}
		windows = append(windows, strings.Join(words[start:end], " "))
	}
	return windows
}
