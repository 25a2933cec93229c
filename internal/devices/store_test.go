package devices

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mijia-gateway/internal/advert"
	"mijia-gateway/internal/db"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	_, err = db.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return NewStore(conn)
}

func TestStore_ImportAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	n, err := s.Import(ctx, []Device{
		livingRoom(),
		{Address: "C4:7C:8D:6A:3E:1F", Name: "ficus"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "4C:65:A8:D0:12:34", got[0].Address)
	require.Equal(t, "living room", got[0].Name)
	require.Len(t, got[0].Topics, 3)
	require.Equal(t, "home/living/humidity", got[0].Topics[advert.RelativeHumidity])
	require.Equal(t, "C4:7C:8D:6A:3E:1F", got[1].Address)
	require.Empty(t, got[1].Topics)

	reg, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())
}

func TestStore_UpsertReplacesTopics(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Upsert(ctx, livingRoom()))
	require.NoError(t, s.Upsert(ctx, Device{
		Address: "4C:65:A8:D0:12:34",
		Name:    "bedroom",
		Topics:  map[advert.ReadingName]string{advert.BatteryPercentage: "home/bedroom/battery"},
	}))

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "bedroom", got[0].Name)
	require.Equal(t, map[advert.ReadingName]string{advert.BatteryPercentage: "home/bedroom/battery"}, got[0].Topics)
}

func TestStore_ImportInvalidWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Import(ctx, []Device{livingRoom(), {Address: "bad"}})
	require.Error(t, err)

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Upsert(ctx, livingRoom()))

	deleted, err := s.Delete(ctx, "4c-65-a8-d0-12-34")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = s.Delete(ctx, "4C:65:A8:D0:12:34")
	require.NoError(t, err)
	require.False(t, deleted)

	var topics int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM device_topics`).Scan(&topics))
	require.Zero(t, topics)
}
