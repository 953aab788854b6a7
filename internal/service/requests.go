package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"eventhub/internal/metrics"
	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/internal/repo"
)

type RequestService struct {
	*base
	notifier notify.Notifier
}

type SubmitInput struct {
	// SubmittedBy is the submitting account, if the caller is signed in.
	SubmittedBy string
	Organizer   model.OrganizerContact
	Event       model.EventDetails
}

type TransitionInput struct {
	RequestID       string
	ActorID         string
	Status          string
	Notes           string
	RejectionReason string
}

type TransitionResult struct {
	Request *model.EventRequest
	// Listing is set only when the transition approved the request.
	Listing *model.Listing
}

func (s *RequestService) Submit(ctx context.Context, in SubmitInput) (*model.EventRequest, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.checkSubmission(ctx, &in); err != nil {
		return nil, err
	}

	req := &model.EventRequest{
		ID:          uuid.NewString(),
		Organizer:   in.Organizer,
		Event:       in.Event,
		Status:      model.RequestPending,
		SubmittedAt: s.now(),
	}

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if in.SubmittedBy != "" {
			u, err := s.actor(ctx, tx, in.SubmittedBy)
			if err != nil {
				return err
			}
			req.SubmittedBy = &u.ID
		}
		return tx.CreateRequest(ctx, req)
	})
	if err != nil {
		return nil, s.fail("submit request", err)
	}

	s.log.Info().Str("request_id", req.ID).Str("event", req.Event.Name).Msg("event request submitted")
	metrics.RequestTransition(string(model.RequestPending))
	s.emit(ctx, notify.Event{Kind: notify.RequestSubmitted, Request: *req})
	return req, nil
}

func (s *RequestService) checkSubmission(ctx context.Context, in *SubmitInput) error {
	in.Organizer.Email = strings.ToLower(strings.TrimSpace(in.Organizer.Email))
	in.Event.Currency = strings.ToUpper(strings.TrimSpace(in.Event.Currency))

	if err := validate(ctx, in.Organizer); err != nil {
		return err
	}
	if err := validate(ctx, in.Event); err != nil {
		return err
	}

	ev := &in.Event
	if !ev.EndsAt.After(ev.StartsAt) {
		return model.Invalid("event.endsAt", "must be after startsAt")
	}
	if ev.IsFree {
		ev.TicketPrice.Valid = false
	} else {
		if !ev.TicketPrice.Valid {
			return model.Invalid("event.ticketPrice", "required unless the event is free")
		}
		if ev.TicketPrice.Decimal.IsNegative() {
			return model.Invalid("event.ticketPrice", "must not be negative")
		}
	}
	if ev.Currency == "" {
		ev.Currency = s.cfg.DefaultCurrency
	}
	return nil
}

func (s *RequestService) Get(ctx context.Context, actorID, id string) (*model.EventRequest, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.reviewer(ctx, actorID); err != nil {
		return nil, s.fail("get request", err)
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, s.fail("get request", err)
	}
	return req, nil
}

// List returns requests newest first; an empty status lists all of them.
func (s *RequestService) List(ctx context.Context, actorID, status string) ([]model.EventRequest, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.reviewer(ctx, actorID); err != nil {
		return nil, s.fail("list requests", err)
	}

	var filter model.RequestStatus
	if status != "" {
		st, err := model.ParseRequestStatus(status)
		if err != nil {
			return nil, err
		}
		filter = st
	}

	out, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, s.fail("list requests", err)
	}
	return out, nil
}

// Transition moves a request through review. Approval publishes the listing
// in the same transaction, so either both are stored or neither is.
func (s *RequestService) Transition(ctx context.Context, in TransitionInput) (*TransitionResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	actor, err := s.reviewer(ctx, in.ActorID)
	if err != nil {
		return nil, s.fail("transition request", err)
	}
	target, err := model.ParseRequestStatus(in.Status)
	if err != nil {
		return nil, err
	}

	var result *TransitionResult
	for attempt := 1; ; attempt++ {
		result, err = s.transitionOnce(ctx, in, actor, target)
		if !errors.Is(err, model.ErrConflict) {
			break
		}
		if attempt >= s.cfg.TransitionMaxAttempts {
			s.log.Error().Err(err).Str("request_id", in.RequestID).Int("attempts", attempt).Msg("transition kept conflicting")
			return nil, fmt.Errorf("transition request: %w", model.ErrInternal)
		}
		s.log.Warn().Err(err).Str("request_id", in.RequestID).Int("attempt", attempt).Msg("transition conflicted, retrying")
	}
	if err != nil {
		return nil, s.fail("transition request", err)
	}

	req := result.Request
	metrics.RequestTransition(string(req.Status))
	s.log.Info().
		Str("request_id", req.ID).
		Str("status", string(req.Status)).
		Str("reviewer_id", actor.ID).
		Msg("event request reviewed")

	switch req.Status {
	case model.RequestApproved:
		metrics.ListingPublished()
		s.emit(ctx, notify.Event{
			Kind:        notify.RequestApproved,
			Request:     *req,
			ReviewNotes: req.ReviewNotes,
			Listing:     result.Listing,
		})
	case model.RequestRejected:
		s.emit(ctx, notify.Event{
			Kind:            notify.RequestRejected,
			Request:         *req,
			ReviewNotes:     req.ReviewNotes,
			RejectionReason: req.RejectionReason,
		})
	}
	return result, nil
}

func (s *RequestService) transitionOnce(ctx context.Context, in TransitionInput, actor *model.User, target model.RequestStatus) (*TransitionResult, error) {
	var result TransitionResult

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		req, err := tx.GetRequestForUpdate(ctx, in.RequestID)
		if err != nil {
			return err
		}
		if req.Status.IsTerminal() {
			return fmt.Errorf("request is %s: %w", req.Status, model.ErrInvalidTransition)
		}
		if target == model.RequestPending {
			return fmt.Errorf("cannot move back to %s: %w", target, model.ErrInvalidTransition)
		}

		reason := strings.TrimSpace(in.RejectionReason)
		if target == model.RequestRejected && reason == "" {
			return model.Invalid("rejectionReason", "required when rejecting")
		}
		if target != model.RequestRejected {
			reason = ""
		}

		now := s.now()
		req.Status = target
		req.ReviewerID = &actor.ID
		req.ReviewedAt = &now
		req.ReviewNotes = strings.TrimSpace(in.Notes)
		req.RejectionReason = reason

		if target == model.RequestApproved {
			listing, err := s.publish(ctx, tx, req, actor)
			if err != nil {
				return err
			}
			req.ListingID = &listing.ID
			result.Listing = listing
		}

		if err := tx.UpdateRequestReview(ctx, req); err != nil {
			return err
		}
		result.Request = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *RequestService) Remove(ctx context.Context, actorID, requestID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	actor, err := s.admin(ctx, actorID)
	if err != nil {
		return s.fail("remove request", err)
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return tx.DeleteRequest(ctx, requestID)
	})
	if err != nil {
		return s.fail("remove request", err)
	}

	s.log.Info().Str("request_id", requestID).Str("admin_id", actor.ID).Msg("event request removed")
	return nil
}

// emit never fails the caller: notification delivery is best-effort.
func (s *RequestService) emit(ctx context.Context, ev notify.Event) {
	ev.OccurredAt = s.now()

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(nctx, ev); err != nil {
		metrics.NotificationFailed(string(ev.Kind))
		s.log.Warn().
			Err(err).
			Str("kind", string(ev.Kind)).
			Str("request_id", ev.Request.ID).
			Msg("failed to publish notification")
	}
}
