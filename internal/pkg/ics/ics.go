// Package ics renders dated items as an iCalendar (RFC 5545) feed.
package ics

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultProdID    = "-//SyllabusSync//EN"
	DefaultUIDDomain = "syllabussync"

	stampLayout = "20060102T150405Z"
	lineBreak   = "\r\n"
)

type Item struct {
	ID      uint
	Summary string
	Due     time.Time
}

type Options struct {
	ProdID    string
	UIDDomain string
}

// Encode writes one VEVENT per item, ordered by due time. DTSTAMP and
// DTSTART both carry the due time in UTC.
func Encode(items []Item, opts Options) string {
	if opts.ProdID == "" {
		opts.ProdID = DefaultProdID
	}
	if opts.UIDDomain == "" {
		opts.UIDDomain = DefaultUIDDomain
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Due.Before(sorted[j].Due)
	})

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + opts.ProdID,
		"CALSCALE:GREGORIAN",
	}
	for _, it := range sorted {
		stamp := FormatTime(it.Due)
		lines = append(lines,
			"BEGIN:VEVENT",
			fmt.Sprintf("UID:ev-%d@%s", it.ID, opts.UIDDomain),
			"DTSTAMP:"+stamp,
			"DTSTART:"+stamp,
			"SUMMARY:"+Escape(it.Summary),
			"END:VEVENT",
		)
	}
	lines = append(lines, "END:VCALENDAR")
	return strings.Join(lines, lineBreak) + lineBreak
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`,`, `\,`,
	`;`, `\;`,
	"\r\n", `\n`,
	"\n", `\n`,
)

// Escape quotes TEXT property values.
func Escape(s string) string {
	return escaper.Replace(s)
}
