package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/model"
)

func TestListingVisibility(t *testing.T) {
	f := newFixture(t, withConfig(Config{OrganizerPolicy: OrganizerSubmitter}))
	l := f.approved(t, nil)
	require.Equal(t, f.organizer.ID, l.OrganizerID)

	got, err := f.svc.Listings.Get(context.Background(), "", l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.Slug, got.Slug)

	_, err = f.svc.Listings.SetPublished(context.Background(), f.buyer.ID, l.ID, false)
	assert.ErrorIs(t, err, model.ErrForbidden)

	hidden, err := f.svc.Listings.SetPublished(context.Background(), f.organizer.ID, l.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.ListingUnpublished, hidden.Status)

	_, err = f.svc.Listings.Get(context.Background(), "", l.ID)
	assert.ErrorIs(t, err, model.ErrListingNotFound)
	_, err = f.svc.Listings.Get(context.Background(), f.buyer.ID, l.ID)
	assert.ErrorIs(t, err, model.ErrListingNotFound)

	for _, id := range []string{f.organizer.ID, f.reviewer.ID} {
		got, err := f.svc.Listings.Get(context.Background(), id, l.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ListingUnpublished, got.Status)
	}

	published, err := f.svc.Listings.ListPublished(context.Background())
	require.NoError(t, err)
	assert.Empty(t, published)

	shown, err := f.svc.Listings.SetPublished(context.Background(), f.admin.ID, l.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.ListingPublished, shown.Status)
	require.NotNil(t, shown.PublishedAt)

	published, err = f.svc.Listings.ListPublished(context.Background())
	require.NoError(t, err)
	assert.Len(t, published, 1)
}

func TestListPublishedOrder(t *testing.T) {
	f := newFixture(t)
	late := f.approved(t, nil)
	early := f.approved(t, func(in *SubmitInput) {
		in.Event.StartsAt = eventStart.AddDate(0, 0, -7)
		in.Event.EndsAt = in.Event.StartsAt.Add(2 * time.Hour)
	})

	out, err := f.svc.Listings.ListPublished(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, early.ID, out[0].ID)
	assert.Equal(t, late.ID, out[1].ID)
}

func TestListingNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Listings.Get(context.Background(), f.admin.ID, "missing")
	assert.ErrorIs(t, err, model.ErrListingNotFound)
	_, err = f.svc.Listings.SetPublished(context.Background(), f.admin.ID, "missing", true)
	assert.ErrorIs(t, err, model.ErrListingNotFound)
}

func TestReassignOrganizer(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, nil)

	_, err := f.svc.Listings.ReassignOrganizer(context.Background(), f.reviewer.ID, l.ID, f.organizer.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.Listings.ReassignOrganizer(context.Background(), f.admin.ID, l.ID, "ghost")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.Listings.ReassignOrganizer(context.Background(), f.admin.ID, l.ID, "")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.Listings.ReassignOrganizer(context.Background(), f.admin.ID, "missing", f.organizer.ID)
	assert.ErrorIs(t, err, model.ErrListingNotFound)

	got, err := f.svc.Listings.ReassignOrganizer(context.Background(), f.admin.ID, l.ID, f.organizer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.organizer.ID, got.OrganizerID)

	// the new organizer may now cancel tickets
	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Tickets.Cancel(context.Background(), f.organizer.ID, tk.TicketID)
	require.NoError(t, err)
}
