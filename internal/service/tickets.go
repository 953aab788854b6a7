package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"eventhub/internal/metrics"
	"eventhub/internal/model"
	"eventhub/internal/pass"
	"eventhub/internal/repo"
)

type TicketService struct {
	*base
	signer *pass.Signer
	guard  ScanGuard
}

type PurchaseInput struct {
	ListingID   string `validate:"required"`
	BuyerUserID string
	BuyerName   string `validate:"required,max=255"`
	BuyerEmail  string `validate:"required,email"`
	BuyerPhone  string `validate:"omitempty,phone"`
}

type Availability struct {
	Capacity  int `json:"capacity"`
	Sold      int `json:"sold"`
	Remaining int `json:"remaining"`
}

// Purchase issues one ticket. The capacity check, the sequence bump and the
// insert share a transaction holding the listing row lock.
func (s *TicketService) Purchase(ctx context.Context, in PurchaseInput) (*model.Ticket, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	in.BuyerName = strings.TrimSpace(in.BuyerName)
	in.BuyerEmail = strings.ToLower(strings.TrimSpace(in.BuyerEmail))
	in.BuyerPhone = strings.TrimSpace(in.BuyerPhone)
	if err := validate(ctx, in); err != nil {
		return nil, err
	}

	var buyerID *string
	if in.BuyerUserID != "" {
		u, err := s.repo.GetUserByID(ctx, in.BuyerUserID)
		switch {
		case err == nil:
			buyerID = &u.ID
		case !errors.Is(err, model.ErrNotFound):
			return nil, s.fail("purchase", err)
		}
	}

	var (
		ticket *model.Ticket
		err    error
	)
	for attempt := 1; ; attempt++ {
		ticket, err = s.issue(ctx, in, buyerID)
		if !errors.Is(err, model.ErrConflict) {
			break
		}
		if attempt >= s.cfg.PurchaseMaxAttempts {
			metrics.PurchaseRejected("conflict")
			s.log.Error().Err(err).Str("listing_id", in.ListingID).Int("attempts", attempt).Msg("ticket issuance kept conflicting")
			return nil, fmt.Errorf("purchase: %w", model.ErrInternal)
		}
		metrics.IssuanceRetried()
		s.log.Warn().Err(err).Str("listing_id", in.ListingID).Int("attempt", attempt).Msg("ticket id conflict, retrying")
	}

	switch {
	case errors.Is(err, model.ErrSoldOut):
		metrics.PurchaseRejected("sold_out")
		return nil, err
	case errors.Is(err, model.ErrListingNotFound):
		metrics.PurchaseRejected("listing_not_found")
		return nil, err
	case err != nil:
		return nil, s.fail("purchase", err)
	}

	metrics.TicketIssued()
	s.log.Info().
		Str("ticket_id", ticket.TicketID).
		Str("listing_id", ticket.ListingID).
		Msg("ticket issued")
	return ticket, nil
}

func (s *TicketService) issue(ctx context.Context, in PurchaseInput, buyerID *string) (*model.Ticket, error) {
	var ticket *model.Ticket

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		l, err := tx.GetListingForUpdate(ctx, in.ListingID)
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrListingNotFound
		}
		if err != nil {
			return err
		}
		if l.Status != model.ListingPublished {
			return model.ErrListingNotFound
		}

		sold, err := tx.CountActiveTickets(ctx, l.ID)
		if err != nil {
			return err
		}
		if sold >= l.Capacity {
			return model.ErrSoldOut
		}

		l.TicketSeq++
		ticketID, err := pass.NewTicketID(l.ID, l.TicketSeq)
		if err != nil {
			return err
		}
		qr, err := s.signer.Mint(pass.Claims{
			TicketID:   ticketID,
			ListingID:  l.ID,
			BuyerEmail: in.BuyerEmail,
			ValidUntil: l.EndsAt.Unix(),
		})
		if err != nil {
			return err
		}

		t := &model.Ticket{
			ID:          uuid.NewString(),
			TicketID:    ticketID,
			ListingID:   l.ID,
			BuyerUserID: buyerID,
			BuyerName:   in.BuyerName,
			BuyerEmail:  in.BuyerEmail,
			BuyerPhone:  in.BuyerPhone,
			Price:       l.Price,
			Currency:    l.Currency,
			Status:      model.TicketActive,
			QRPayload:   qr,
			PurchasedAt: s.now(),
		}

		if err := tx.UpdateListing(ctx, l); err != nil {
			return err
		}
		if err := tx.CreateTicket(ctx, t); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) Get(ctx context.Context, ticketID string) (*model.Ticket, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, s.fail("get ticket", err)
	}
	return t, nil
}

func (s *TicketService) Availability(ctx context.Context, listingID string) (Availability, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	l, err := s.repo.GetListing(ctx, listingID)
	if errors.Is(err, model.ErrNotFound) {
		return Availability{}, model.ErrListingNotFound
	}
	if err != nil {
		return Availability{}, s.fail("availability", err)
	}
	sold, err := s.repo.CountActiveTickets(ctx, l.ID)
	if err != nil {
		return Availability{}, s.fail("availability", err)
	}

	remaining := l.Capacity - sold
	if remaining < 0 {
		remaining = 0
	}
	return Availability{Capacity: l.Capacity, Sold: sold, Remaining: remaining}, nil
}

// Redeem marks an ACTIVE ticket USED.
func (s *TicketService) Redeem(ctx context.Context, ticketID string) (*model.Ticket, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	locked := false
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, ticketID)
		switch {
		case err != nil:
			// the row lock below still serializes redemptions
			s.log.Warn().Err(err).Str("ticket_id", ticketID).Msg("scan guard unavailable")
		case !ok:
			metrics.TicketRedeemed("concurrent_scan")
			return nil, fmt.Errorf("ticket is being scanned: %w", model.ErrAlreadyUsed)
		default:
			locked = true
		}
	}

	var ticket *model.Ticket
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		t, err := tx.GetTicketForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		switch t.Status {
		case model.TicketUsed:
			return model.ErrAlreadyUsed
		case model.TicketCancelled:
			return model.ErrTicketCancelled
		}

		now := s.now()
		t.Status = model.TicketUsed
		t.IsUsed = true
		t.UsedAt = &now
		if err := tx.UpdateTicketStatus(ctx, t); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		if locked && !errors.Is(err, model.ErrAlreadyUsed) {
			if rerr := s.guard.Release(context.WithoutCancel(ctx), ticketID); rerr != nil {
				s.log.Warn().Err(rerr).Str("ticket_id", ticketID).Msg("failed to release scan guard")
			}
		}
		metrics.TicketRedeemed(redeemOutcome(err))
		return nil, s.fail("redeem", err)
	}

	metrics.TicketRedeemed("ok")
	s.log.Info().Str("ticket_id", ticketID).Msg("ticket redeemed")
	return ticket, nil
}

func redeemOutcome(err error) string {
	switch {
	case errors.Is(err, model.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, model.ErrTicketCancelled):
		return "cancelled"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	}
	return "error"
}

// RedeemPass verifies a scanned QR payload against the stored ticket, then redeems it.
func (s *TicketService) RedeemPass(ctx context.Context, payload string) (*model.Ticket, error) {
	claims, err := s.signer.VerifyAt(strings.TrimSpace(payload), s.now())
	if err != nil {
		metrics.TicketRedeemed("invalid_pass")
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPass, err)
	}

	t, err := s.Get(ctx, claims.TicketID)
	if errors.Is(err, model.ErrNotFound) {
		metrics.TicketRedeemed("invalid_pass")
		return nil, fmt.Errorf("%w: unknown ticket", model.ErrInvalidPass)
	}
	if err != nil {
		return nil, err
	}
	if t.ListingID != claims.ListingID || !strings.EqualFold(t.BuyerEmail, claims.BuyerEmail) {
		metrics.TicketRedeemed("invalid_pass")
		return nil, fmt.Errorf("%w: claims do not match ticket", model.ErrInvalidPass)
	}

	return s.Redeem(ctx, claims.TicketID)
}

// Cancel voids an ACTIVE ticket and frees its seat. Reviewers and the listing
// organizer may cancel.
func (s *TicketService) Cancel(ctx context.Context, actorID, ticketID string) (*model.Ticket, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	actor, err := s.actor(ctx, s.repo, actorID)
	if err != nil {
		return nil, s.fail("cancel ticket", err)
	}

	var ticket *model.Ticket
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		t, err := tx.GetTicketForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		l, err := tx.GetListingForUpdate(ctx, t.ListingID)
		if err != nil {
			return err
		}
		if !actor.Role.CanReview() && l.OrganizerID != actor.ID {
			return model.ErrForbidden
		}
		if t.Status != model.TicketActive {
			return fmt.Errorf("ticket is %s: %w", t.Status, model.ErrInvalidTransition)
		}

		now := s.now()
		t.Status = model.TicketCancelled
		t.CancelledAt = &now
		if err := tx.UpdateTicketStatus(ctx, t); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, s.fail("cancel ticket", err)
	}

	metrics.TicketCancelled()
	s.log.Info().Str("ticket_id", ticketID).Str("actor_id", actor.ID).Msg("ticket cancelled")
	return ticket, nil
}
