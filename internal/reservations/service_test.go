package reservations

import (
	"context"
	"testing"

	"tableside/internal/shared/testutil"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedReservation(t *testing.T, repo Repository, date string, status Status) *Reservation {
	t.Helper()
	r := &Reservation{
		CustomerName:  gofakeit.Name(),
		CustomerEmail: gofakeit.Email(),
		CustomerPhone: gofakeit.Phone(),
		PartySize:     gofakeit.IntRange(1, 8),
		Date:          date,
		Time:          "19:30",
		Status:        status,
	}
	require.NoError(t, repo.Create(context.Background(), r))
	return r
}

func TestService_ListFiltersAndPaginates(t *testing.T) {
	db := testutil.NewDB(t, &Reservation{})
	repo := NewRepository(db)
	svc := NewService(repo)

	for i := 0; i < 3; i++ {
		seedReservation(t, repo, "2026-10-17", StatusConfirmed)
	}
	seedReservation(t, repo, "2026-10-18", StatusConfirmed)
	seedReservation(t, repo, "2026-10-17", StatusCancelled)

	res, err := svc.ListReservations(context.Background(), ListQuery{Date: "2026-10-17", Status: "confirmed", Limit: 2})
	require.NoError(t, err)

	assert.Len(t, res.Reservations, 2)
	assert.EqualValues(t, 3, res.Pagination.Total)
	assert.True(t, res.Pagination.HasNext)
}

func TestService_UpdateStatus(t *testing.T) {
	db := testutil.NewDB(t, &Reservation{})
	repo := NewRepository(db)
	svc := NewService(repo)
	ctx := context.Background()

	r := seedReservation(t, repo, "2026-10-17", StatusConfirmed)

	updated, err := svc.UpdateStatus(ctx, r.ID, StatusSeated)
	require.NoError(t, err)
	assert.Equal(t, StatusSeated, updated.Status)

	_, err = svc.UpdateStatus(ctx, r.ID, StatusCompleted)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, r.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, 9999, StatusSeated)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestRepository_SourceEntryIsUnique(t *testing.T) {
	db := testutil.NewDB(t, &Reservation{})
	repo := NewRepository(db)
	ctx := context.Background()

	entryID := uint(42)
	first := &Reservation{CustomerName: "A", PartySize: 2, Date: "2026-10-17", Time: "18:00", Status: StatusConfirmed, SourceWaitlistEntryID: &entryID}
	require.NoError(t, repo.Create(ctx, first))

	second := &Reservation{CustomerName: "B", PartySize: 2, Date: "2026-10-17", Time: "18:00", Status: StatusConfirmed, SourceWaitlistEntryID: &entryID}
	assert.Error(t, repo.Create(ctx, second))

	got, err := repo.GetBySourceEntry(ctx, entryID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}
