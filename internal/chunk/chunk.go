// Package chunk splits long response text into transport-safe pieces,
// preferring paragraph boundaries over hard cuts.
package chunk

import "unicode/utf8"

// MaxChunks is the point past which a chunked reply is collapsed to a
// tail-only view instead of being delivered in full. This is a display
// policy layered on top of Split, not a property of Split itself.
const MaxChunks = 5

// tailNotice precedes a collapsed view of an overlong chunk sequence.
const tailNotice = "The context is long; showing the last part.\n\n"

// Split cuts text into chunks of at most maxLen characters. Empty text
// yields no chunks. Within each window the last blank-line break is
// used as the cut when it falls past the window midpoint (the break
// itself is dropped); otherwise the cut is a hard split at maxLen.
func Split(text string, maxLen int) []string {
	if text == "" || maxLen <= 0 {
		return nil
	}
	r := []rune(text)
	if len(r) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(r) > 0 {
		if len(r) <= maxLen {
			chunks = append(chunks, string(r))
			break
		}
		window := r[:maxLen]
		if cut := lastBreak(window); cut > maxLen/2 {
			chunks = append(chunks, string(r[:cut]))
			r = r[cut+2:]
		} else {
			chunks = append(chunks, string(window))
			r = r[maxLen:]
		}
	}
	return chunks
}

// lastBreak returns the index of the '\n' opening the last blank-line
// break fully contained in window, or -1 if there is none.
func lastBreak(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// TailView renders an overlong chunk sequence as its last one or two
// chunks behind a notice, bounded to maxLen characters in total.
func TailView(chunks []string, maxLen int) string {
	if len(chunks) == 0 {
		return ""
	}
	tail := chunks[len(chunks)-1]
	if len(chunks) >= 2 {
		tail = chunks[len(chunks)-2] + "\n\n" + tail
	}
	budget := maxLen - utf8.RuneCountInString(tailNotice)
	if budget < 0 {
		budget = 0
	}
	if r := []rune(tail); len(r) > budget {
		tail = string(r[len(r)-budget:])
	}
	return tailNotice + tail
}
