// Package store holds the access-control records the dashboard reads:
// users with their RFID cards, doors, the readers mounted on them, and the
// access log the readers produce.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

type User struct {
	ID        string    `json:"id" yaml:"id" spanner:"id"`
	Name      string    `json:"name" yaml:"name" spanner:"name"`
	Email     string    `json:"email" yaml:"email" spanner:"email"`
	CardID    string    `json:"card_id" yaml:"card_id" spanner:"card_id"`
	Role      string    `json:"role" yaml:"role" spanner:"role"`
	Active    bool      `json:"active" yaml:"active" spanner:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at" spanner:"created_at"`
}

type Door struct {
	ID       string `json:"id" yaml:"id" spanner:"id"`
	Name     string `json:"name" yaml:"name" spanner:"name"`
	Location string `json:"location" yaml:"location" spanner:"location"`
	Locked   bool   `json:"locked" yaml:"locked" spanner:"locked"`
}

type Device struct {
	ID       string    `json:"id" yaml:"id" spanner:"id"`
	Name     string    `json:"name" yaml:"name" spanner:"name"`
	DoorID   string    `json:"door_id" yaml:"door_id" spanner:"door_id"`
	Status   string    `json:"status" yaml:"status" spanner:"status"`
	LastSeen time.Time `json:"last_seen" yaml:"last_seen" spanner:"last_seen"`
}

// AccessLog is one card presentation at a reader.
type AccessLog struct {
	ID         string    `json:"id" yaml:"id" spanner:"id"`
	UserID     string    `json:"user_id" yaml:"user_id" spanner:"user_id"`
	CardID     string    `json:"card_id" yaml:"card_id" spanner:"card_id"`
	DoorID     string    `json:"door_id" yaml:"door_id" spanner:"door_id"`
	DeviceID   string    `json:"device_id" yaml:"device_id" spanner:"device_id"`
	Granted    bool      `json:"granted" yaml:"granted" spanner:"granted"`
	Reason     string    `json:"reason,omitempty" yaml:"reason" spanner:"reason"`
	OccurredAt time.Time `json:"occurred_at" yaml:"occurred_at" spanner:"occurred_at"`
}

type Store interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	ListDoors(ctx context.Context) ([]Door, error)
	ListDevices(ctx context.Context) ([]Device, error)
	// ListAccessLogs returns events at or after since, newest first.
	ListAccessLogs(ctx context.Context, since time.Time) ([]AccessLog, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SpannerStore)(nil)
)
