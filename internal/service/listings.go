package service

import (
	"context"
	"errors"

	"eventhub/internal/model"
	"eventhub/internal/repo"
)

type ListingService struct {
	*base
}

// Get returns a listing. Unpublished listings are visible only to their
// organizer and to reviewers.
func (s *ListingService) Get(ctx context.Context, actorID, id string) (*model.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	l, err := s.repo.GetListing(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrListingNotFound
	}
	if err != nil {
		return nil, s.fail("get listing", err)
	}
	if l.Status == model.ListingPublished {
		return l, nil
	}

	actor, err := s.actor(ctx, s.repo, actorID)
	if err != nil || (!actor.Role.CanReview() && actor.ID != l.OrganizerID) {
		return nil, model.ErrListingNotFound
	}
	return l, nil
}

func (s *ListingService) ListPublished(ctx context.Context) ([]model.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.repo.ListPublishedListings(ctx)
	if err != nil {
		return nil, s.fail("list listings", err)
	}
	return out, nil
}

// SetPublished toggles visibility. Only the organizer of record or an admin may do it.
func (s *ListingService) SetPublished(ctx context.Context, actorID, id string, published bool) (*model.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	actor, err := s.actor(ctx, s.repo, actorID)
	if err != nil {
		return nil, s.fail("set publication", err)
	}

	var listing *model.Listing
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		l, err := tx.GetListingForUpdate(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrListingNotFound
		}
		if err != nil {
			return err
		}
		if !actor.Role.IsSuperuser() && actor.ID != l.OrganizerID {
			return model.ErrForbidden
		}

		if published {
			now := s.now()
			l.Status = model.ListingPublished
			l.PublishedAt = &now
		} else {
			l.Status = model.ListingUnpublished
		}
		if err := tx.UpdateListing(ctx, l); err != nil {
			return err
		}
		listing = l
		return nil
	})
	if err != nil {
		return nil, s.fail("set publication", err)
	}

	s.log.Info().
		Str("listing_id", id).
		Str("status", string(listing.Status)).
		Str("actor_id", actor.ID).
		Msg("listing publication changed")
	return listing, nil
}

// ReassignOrganizer is an admin override of the organizer of record.
func (s *ListingService) ReassignOrganizer(ctx context.Context, actorID, id, organizerID string) (*model.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	actor, err := s.admin(ctx, actorID)
	if err != nil {
		return nil, s.fail("reassign organizer", err)
	}
	if organizerID == "" {
		return nil, model.Invalid("organizerId", "required")
	}

	var listing *model.Listing
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if _, err := tx.GetUserByID(ctx, organizerID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.Invalid("organizerId", "unknown user")
			}
			return err
		}
		l, err := tx.GetListingForUpdate(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrListingNotFound
		}
		if err != nil {
			return err
		}
		l.OrganizerID = organizerID
		if err := tx.UpdateListing(ctx, l); err != nil {
			return err
		}
		listing = l
		return nil
	})
	if err != nil {
		return nil, s.fail("reassign organizer", err)
	}

	s.log.Info().
		Str("listing_id", id).
		Str("organizer_id", organizerID).
		Str("admin_id", actor.ID).
		Msg("listing organizer reassigned")
	return listing, nil
}
