package repo

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"eventhub/internal/model"
)

// Reader holds the lookups available both inside and outside a transaction.
type Reader interface {
	GetRequest(ctx context.Context, id string) (*model.EventRequest, error)
	ListRequests(ctx context.Context, status model.RequestStatus) ([]model.EventRequest, error)
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	ListPublishedListings(ctx context.Context) ([]model.Listing, error)
	CountActiveTickets(ctx context.Context, listingID string) (int, error)
	GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Tx is a unit of work. Writes become visible only when WithinTx commits.
type Tx interface {
	Reader

	CreateRequest(ctx context.Context, r *model.EventRequest) error
	GetRequestForUpdate(ctx context.Context, id string) (*model.EventRequest, error)
	UpdateRequestReview(ctx context.Context, r *model.EventRequest) error
	DeleteRequest(ctx context.Context, id string) error

	CreateListing(ctx context.Context, l *model.Listing) error
	GetListingForUpdate(ctx context.Context, id string) (*model.Listing, error)
	UpdateListing(ctx context.Context, l *model.Listing) error

	CreateTicket(ctx context.Context, t *model.Ticket) error
	GetTicketForUpdate(ctx context.Context, ticketID string) (*model.Ticket, error)
	UpdateTicketStatus(ctx context.Context, t *model.Ticket) error

	CreateUser(ctx context.Context, u *model.User) error
}

type Repository interface {
	Reader

	// WithinTx runs fn in one transaction, committing when fn returns nil
	// and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

// SeedCategories is the category set installed by the initial migration.
func SeedCategories() []model.Category {
	return []model.Category{
		{ID: "c0a80001-0000-4000-8000-000000000001", Name: "Music", Slug: "music"},
		{ID: "c0a80001-0000-4000-8000-000000000002", Name: "Sports", Slug: "sports"},
		{ID: "c0a80001-0000-4000-8000-000000000003", Name: "Arts & Theatre", Slug: "arts-theatre"},
		{ID: "c0a80001-0000-4000-8000-000000000004", Name: "Conference", Slug: "conference"},
		{ID: "c0a80001-0000-4000-8000-000000000005", Name: "Festival", Slug: "festival"},
		{ID: "c0a80001-0000-4000-8000-000000000006", Name: "Food & Drink", Slug: "food-drink"},
		{ID: "c0a80001-0000-4000-8000-000000000007", Name: "Community", Slug: "community"},
		{ID: "c0a80001-0000-4000-8000-000000000008", Name: "Comedy", Slug: "comedy"},
		{ID: "c0a80001-0000-4000-8000-000000000009", Name: "Workshop", Slug: "workshop"},
		{ID: "c0a80001-0000-4000-8000-00000000000a", Name: "Charity", Slug: "charity"},
	}
}

// mapPgError turns driver errors the callers can act on into sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001", "40P01":
			return errors.Join(model.ErrConflict, err)
		case "22P02":
			// malformed uuid in a lookup
			return model.ErrNotFound
		}
	}
	return err
}
