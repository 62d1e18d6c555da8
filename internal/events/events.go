// Package events publishes booking lifecycle events.
package events

import (
	"context"
	"errors"
	"time"
)

// Type identifies a booking lifecycle transition.
type Type string

const (
	TypeBookingReserved  Type = "booking.reserved"
	TypeBookingCancelled Type = "booking.cancelled"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("events: publisher closed")

// BookingEvent is the payload written for every reservation and cancellation.
type BookingEvent struct {
	EventID    string    `json:"event_id"`
	Type       Type      `json:"type"`
	BookingID  string    `json:"booking_id"`
	MemberID   string    `json:"member_id"`
	PatternID  string    `json:"pattern_id"`
	ClassID    string    `json:"class_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers booking events.
type Publisher interface {
	Publish(ctx context.Context, event BookingEvent) error
	Close() error
}

// NopPublisher discards every event. It is used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, BookingEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
