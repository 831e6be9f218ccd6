//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"zeron/internal/property/models"
	"zeron/pkg/domain"
	"zeron/pkg/platform/sentinel"
	"zeron/pkg/testutil/containers"
)

func seedPostgresProperty(t *testing.T, s *PostgresStore, shares int) *models.Property {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &models.Property{
		ID:              domain.NewPropertyID(),
		Title:           "Marina Heights",
		Location:        "Dubai",
		Status:          models.PropertyStatusActive,
		PricePerShare:   100,
		TotalShares:     shares,
		AvailableShares: shares,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.Create(context.Background(), p))
	return p
}

func TestPostgresStoreReserve(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	s := NewPostgres(pc.DB)
	ctx := context.Background()

	t.Run("round trip and conditional decrement", func(t *testing.T) {
		require.NoError(t, pc.TruncateTables(ctx, "investments", "properties"))
		p := seedPostgresProperty(t, s, 10)

		remaining, err := s.Reserve(ctx, p.ID, 4)
		require.NoError(t, err)
		require.Equal(t, 6, remaining)

		got, err := s.FindByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 6, got.AvailableShares)
		require.Equal(t, 1, got.InvestorCount)
	})

	t.Run("insufficient inventory reports the true count", func(t *testing.T) {
		require.NoError(t, pc.TruncateTables(ctx, "investments", "properties"))
		p := seedPostgresProperty(t, s, 3)

		remaining, err := s.Reserve(ctx, p.ID, 5)
		require.ErrorIs(t, err, sentinel.ErrConflict)
		require.Equal(t, 3, remaining)
	})

	t.Run("missing property", func(t *testing.T) {
		_, err := s.Reserve(ctx, domain.NewPropertyID(), 1)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("row serialization under contention", func(t *testing.T) {
		require.NoError(t, pc.TruncateTables(ctx, "investments", "properties"))
		p := seedPostgresProperty(t, s, 50)

		g := errgroup.Group{}
		for range 100 {
			g.Go(func() error {
				_, err := s.Reserve(ctx, p.ID, 1)
				if err != nil && !errors.Is(err, sentinel.ErrConflict) {
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		got, err := s.FindByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 0, got.AvailableShares)
		require.Equal(t, 50, got.InvestorCount)
		require.Equal(t, models.PropertyStatusSoldOut, got.Status)
	})
}

func TestPostgresStoreLifecycle(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	s := NewPostgres(pc.DB)
	ctx := context.Background()

	p := seedPostgresProperty(t, s, 10)

	p.Title = "Marina Heights II"
	p.PricePerShare = 120
	p.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.Update(ctx, p))

	got, err := s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Marina Heights II", got.Title)

	require.NoError(t, s.MarkDeleted(ctx, p.ID))
	got, err = s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.PropertyStatusDeleted, got.Status)
}
