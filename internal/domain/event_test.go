package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFormatClock(t *testing.T) {
	loc := time.FixedZone("test", 0)
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, 5, 1, 7, 3, 59, 0, loc), "07:03"},
		{time.Date(2024, 5, 1, 23, 45, 0, 0, loc), "23:45"},
		{time.Date(2024, 5, 1, 0, 0, 0, 0, loc), "00:00"},
	}
	for _, c := range cases {
		if got := FormatClock(c.in, loc); got != c.want {
			t.Fatalf("FormatClock(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatClock_ConvertsToLocation(t *testing.T) {
	utc := time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC)
	plusThree := time.FixedZone("plus3", 3*3600)
	if got := FormatClock(utc, plusThree); got != "01:30" {
		t.Fatalf("expected 01:30, got %q", got)
	}
}

func TestNewOutboundEvent(t *testing.T) {
	msg := Message{
		ID:         7,
		SenderName: "alice",
		Body:       "hi",
		CreatedAt:  time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC),
	}
	ev := NewOutboundEvent(msg, time.UTC)
	if ev.Message != "hi" || ev.Username != "alice" || ev.Time != "09:05" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("append: %w", ErrValidation):        CodeValidation,
		fmt.Errorf("resolve: %w", ErrIdentityNotFound): CodeIdentityNotFound,
		fmt.Errorf("append: %w", ErrStorage):           CodeStorage,
		ErrRateLimited:                                 CodeRateLimited,
		fmt.Errorf("publish: %w", ErrDelivery):         CodeDelivery,
		errors.New("boom"):                             CodeInternal,
	}
	for err, want := range cases {
		if got := ErrorCode(err); got != want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestNewErrorEvent_HidesInternalDetail(t *testing.T) {
	ev := NewErrorEvent(fmt.Errorf("%w: connection refused", ErrStorage))
	if ev.Error != CodeStorage || ev.Detail != "" {
		t.Fatalf("unexpected storage error event: %+v", ev)
	}
	ev = NewErrorEvent(fmt.Errorf("%w: empty body", ErrValidation))
	if ev.Error != CodeValidation || ev.Detail == "" {
		t.Fatalf("expected validation detail, got %+v", ev)
	}
}
