package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
)

var userColumns = []string{"id", "name", "email", "card_id", "role", "active", "created_at"}

// SpannerStore reads the users, doors, devices and access_logs tables of a
// Cloud Spanner database. Columns match the spanner struct tags.
type SpannerStore struct {
	client *spanner.Client
}

// NewSpannerStore connects to database, given as
// projects/P/instances/I/databases/D. SPANNER_EMULATOR_HOST is honoured.
func NewSpannerStore(ctx context.Context, database string) (*SpannerStore, error) {
	client, err := spanner.NewClient(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("spanner client: %w", err)
	}
	return &SpannerStore{client: client}, nil
}

func (s *SpannerStore) Close() {
	s.client.Close()
}

func (s *SpannerStore) ListUsers(ctx context.Context) ([]User, error) {
	return queryAll[User](ctx, s.client, spanner.Statement{
		SQL: `SELECT id, name, email, card_id, role, active, created_at FROM users ORDER BY id`,
	})
}

func (s *SpannerStore) GetUser(ctx context.Context, id string) (User, error) {
	row, err := s.client.Single().ReadRow(ctx, "users", spanner.Key{id}, userColumns)
	if spanner.ErrCode(err) == codes.NotFound {
		return User{}, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("read user %q: %w", id, err)
	}
	var user User
	if err := row.ToStruct(&user); err != nil {
		return User{}, fmt.Errorf("decode user %q: %w", id, err)
	}
	return user, nil
}

func (s *SpannerStore) ListDoors(ctx context.Context) ([]Door, error) {
	return queryAll[Door](ctx, s.client, spanner.Statement{
		SQL: `SELECT id, name, location, locked FROM doors ORDER BY id`,
	})
}

func (s *SpannerStore) ListDevices(ctx context.Context) ([]Device, error) {
	return queryAll[Device](ctx, s.client, spanner.Statement{
		SQL: `SELECT id, name, door_id, status, last_seen FROM devices ORDER BY id`,
	})
}

func (s *SpannerStore) ListAccessLogs(ctx context.Context, since time.Time) ([]AccessLog, error) {
	return queryAll[AccessLog](ctx, s.client, spanner.Statement{
		SQL: `SELECT id, user_id, card_id, door_id, device_id, granted, reason, occurred_at
		FROM access_logs
		WHERE occurred_at >= @since
		ORDER BY occurred_at DESC`,
		Params: map[string]interface{}{"since": since},
	})
}

func queryAll[T any](ctx context.Context, client *spanner.Client, stmt spanner.Statement) ([]T, error) {
	iter := client.Single().Query(ctx, stmt)
	defer iter.Stop()

	out := []T{}
	for {
		row, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("spanner query: %w", err)
		}
		var item T
		if err := row.ToStruct(&item); err != nil {
			return nil, fmt.Errorf("spanner decode: %w", err)
		}
		out = append(out, item)
	}
}
