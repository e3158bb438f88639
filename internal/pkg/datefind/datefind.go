// Package datefind locates a calendar date inside a free-form line of text.
package datefind

import (
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const maxWindowTokens = 6

// layouts are tried before the general parser; they cover the forms most
// syllabi use and never guess a missing year.
var layouts = []string{
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"January 2, 2006",
	"Mon Jan 2 2006",
	"Monday, January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02",
	"01/02/2006",
}

// Finder returns the first date mentioned in a line. Absolute dates
// ("Dec 15 2025", "2025-12-15") win over relative phrases ("next friday").
type Finder struct {
	loc      *time.Location
	now      func() time.Time
	relative *when.Parser
}

func New(loc *time.Location) *Finder {
	return NewWithClock(loc, time.Now)
}

func NewWithClock(loc *time.Location, now func() time.Time) *Finder {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Finder{loc: loc, now: now, relative: w}
}

// Find reports the parsed date and true, or the zero time and false when
// the line mentions no date. Returned times carry the finder's location.
func (f *Finder) Find(line string) (time.Time, bool) {
	tokens := tokenize(line)
	if len(tokens) == 0 {
		return time.Time{}, false
	}

	size := maxWindowTokens
	if size > len(tokens) {
		size = len(tokens)
	}
	for ; size >= 1; size-- {
		for start := 0; start+size <= len(tokens); start++ {
			window := tokens[start : start+size]
			if size == 1 && isNumeric(window[0]) {
				continue
			}
			candidate := strings.TrimRight(strings.Join(window, " "), ",.;:!?")
			if candidate == "" {
				continue
			}
			if t, ok := f.parseAbsolute(candidate); ok {
				return t, true
			}
		}
	}

	r, err := f.relative.Parse(line, f.now().In(f.loc))
	if err != nil || r == nil {
		return time.Time{}, false
	}
	return r.Time.In(f.loc), true
}

func (f *Finder) parseAbsolute(candidate string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, candidate, f.loc); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseIn(candidate, f.loc)
	if err != nil || t.Year() < 1970 {
		return time.Time{}, false
	}
	return t.In(f.loc), true
}

func tokenize(line string) []string {
	fields := strings.Fields(line)
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "()[]{}\"'")
		f = strings.TrimLeft(f, ":;")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isNumeric(s string) bool {
	s = strings.TrimRight(s, ",.;:!?")
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
