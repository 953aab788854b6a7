package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eventhub/internal/catalog"
	"eventhub/internal/model"
	"eventhub/internal/repo"
)

// publish creates the listing for an approved request inside tx.
func (s *RequestService) publish(ctx context.Context, tx repo.Tx, req *model.EventRequest, reviewer *model.User) (*model.Listing, error) {
	ev := req.Event

	categories, err := tx.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	category, err := catalog.ResolveCategory(ev.Category, categories)
	if err != nil {
		return nil, fmt.Errorf("category %q: %w", ev.Category, err)
	}

	now := s.now()
	slug, err := catalog.UniqueSlug(ev.Name, now)
	if err != nil {
		return nil, fmt.Errorf("derive slug: %w", err)
	}

	organizerID, err := s.organizerFor(ctx, tx, req, reviewer)
	if err != nil {
		return nil, err
	}

	price := decimal.Zero
	if !ev.IsFree && ev.TicketPrice.Valid {
		price = ev.TicketPrice.Decimal
	}
	currency := ev.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	listing := &model.Listing{
		ID:             uuid.NewString(),
		Slug:           slug,
		RequestID:      req.ID,
		Name:           ev.Name,
		Description:    ev.Description,
		CategoryID:     category.ID,
		CategoryName:   category.Name,
		StartsAt:       ev.StartsAt,
		EndsAt:         ev.EndsAt,
		VenueName:      ev.VenueName,
		VenueAddress:   ev.VenueAddress,
		City:           ev.City,
		State:          ev.State,
		Zip:            ev.Zip,
		Country:        ev.Country,
		VenueType:      catalog.ResolveVenueType(ev.VenueType),
		Capacity:       catalog.ParseCapacity(ev.ExpectedAttendance, s.cfg.DefaultCapacity),
		Price:          price,
		Currency:       currency,
		IsFree:         ev.IsFree,
		AgeRestriction: ev.AgeRestriction,
		Accessibility:  ev.Accessibility,
		Parking:        ev.Parking,
		Food:           ev.Food,
		Alcohol:        ev.Alcohol,
		Website:        ev.Website,
		OrganizerID:    organizerID,
		Status:         model.ListingPublished,
		PublishedAt:    &now,
		CreatedAt:      now,
	}

	if err := tx.CreateListing(ctx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *RequestService) organizerFor(ctx context.Context, tx repo.Tx, req *model.EventRequest, reviewer *model.User) (string, error) {
	if s.cfg.OrganizerPolicy != OrganizerSubmitter {
		return reviewer.ID, nil
	}

	if req.SubmittedBy != nil {
		u, err := tx.GetUserByID(ctx, *req.SubmittedBy)
		if err == nil {
			return u.ID, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
	}

	u, err := tx.GetUserByEmail(ctx, req.Organizer.Email)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return "", err
	}

	s.log.Warn().
		Str("request_id", req.ID).
		Str("reviewer_id", reviewer.ID).
		Msg("no account for the submitter, reviewer becomes organizer")
	return reviewer.ID, nil
}
