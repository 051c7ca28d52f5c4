package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/object-gate/pkg/objectgate/subscription"
)

// fakeDB records queries and answers QueryRow with a fixed row
type fakeDB struct {
	lastSQL  string
	lastArgs []interface{}
	exists   bool
	err      error
}

type fakeRow struct {
	exists bool
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*bool)) = r.exists
	return nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return fakeRow{exists: f.exists, err: f.err}
}

func TestStore_HasActiveSubscription(t *testing.T) {
	db := &fakeDB{exists: true}
	store := New(db)

	ok, err := store.HasActiveSubscription(context.Background(), "u2", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []interface{}{"u2", "u1", "active"}, db.lastArgs)
	assert.Contains(t, db.lastSQL, "FROM subscriptions")
}

func TestStore_HasActiveSubscriptionErrors(t *testing.T) {
	t.Run("MissingTable", func(t *testing.T) {
		store := New(&fakeDB{err: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}})
		_, err := store.HasActiveSubscription(context.Background(), "u2", "u1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration required")
	})

	t.Run("Connection", func(t *testing.T) {
		cause := errors.New("connection refused")
		store := New(&fakeDB{err: cause})
		_, err := store.HasActiveSubscription(context.Background(), "u2", "u1")
		assert.ErrorIs(t, err, cause)
	})
}

func TestStore_Put(t *testing.T) {
	db := &fakeDB{}
	store := New(db)

	err := store.Put(context.Background(), subscription.Subscription{SubscriberID: "u2", CreatorID: "u1", Status: subscription.StatusActive})
	require.NoError(t, err)
	assert.Contains(t, db.lastSQL, "ON CONFLICT")
	assert.Equal(t, []interface{}{"u2", "u1", "active"}, db.lastArgs)

	err = store.Put(context.Background(), subscription.Subscription{CreatorID: "u1"})
	assert.Error(t, err)
}
