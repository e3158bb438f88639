// Package chunker splits page text into overlapping fixed-size windows.
package chunker

const (
	DefaultMaxLen  = 800
	DefaultOverlap = 100
)

// Window is a slice of the input text. Start and End are rune offsets into
// the text passed to Split.
type Window struct {
	Start int
	End   int
	Text  string
}

// Split cuts text into windows of at most maxLen runes, each starting
// overlap runes before the previous window's end. A maxLen <= 0 yields the
// whole text as a single window. Empty text yields no windows.
//
// Window starts strictly increase even when overlap >= maxLen.
func Split(text string, maxLen, overlap int) []Window {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if maxLen <= 0 {
		return []Window{{Start: 0, End: n, Text: text}}
	}
	if overlap < 0 {
		overlap = 0
	}

	var windows []Window
	start := 0
	for start < n {
		end := start + maxLen
		if end > n {
			end = n
		}
		windows = append(windows, Window{Start: start, End: end, Text: string(runes[start:end])})
		if end == n {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return windows
}
