package app

import (
	"context"

	"syllabussync/internal/pkg/ics"
	"syllabussync/internal/repository"
)

type CalendarService struct {
	events *repository.EventRepository
	opts   ics.Options
}

func NewCalendarService(events *repository.EventRepository, opts ics.Options) *CalendarService {
	return &CalendarService{events: events, opts: opts}
}

// ExportICS renders the version's events as an iCalendar feed. A version
// without events yields an empty calendar.
func (s *CalendarService) ExportICS(ctx context.Context, versionID uint) (string, error) {
	if versionID == 0 {
		return "", ErrInvalidInput
	}
	events, err := s.events.ListByVersion(ctx, versionID)
	if err != nil {
		return "", err
	}
	items := make([]ics.Item, len(events))
	for i, ev := range events {
		items[i] = ics.Item{ID: ev.ID, Summary: ev.Title, Due: ev.DueAt}
	}
	return ics.Encode(items, s.opts), nil
}
