package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"
)

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	ErrInvalidTimeRange = errors.New("invalid time range: from must be <= to")
	ErrUnknownEventType = errors.New("unknown event type")
)

const maxLogLimit = 1000

var eventTypes = map[string]bool{
	models.EventStart:  true,
	models.EventStop:   true,
	models.EventRunOut: true,
	models.EventFault:  true,
	models.EventReset:  true,
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates them.
func normalizeAndValidateFilter(f LogFilter) (repository.EventFilter, error) {
	out := repository.EventFilter{
		From:  normalizeToUTC(f.From),
		To:    normalizeToUTC(f.To),
		Type:  normalizeEventType(f.Type),
		RunID: strings.TrimSpace(f.RunID),
		Limit: f.Limit,
	}
	if !out.From.IsZero() && !out.To.IsZero() && out.From.After(out.To) {
		return repository.EventFilter{}, ErrInvalidTimeRange
	}
	if out.Type != "" && !eventTypes[out.Type] {
		return repository.EventFilter{}, fmt.Errorf("%w: %q", ErrUnknownEventType, out.Type)
	}
	if out.Limit <= 0 || out.Limit > maxLogLimit {
		out.Limit = maxLogLimit
	}
	return out, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.RunEvent, error) {
	filter, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, filter)
}
