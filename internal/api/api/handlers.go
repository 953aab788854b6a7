package api

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventhub/internal/dto"
	"eventhub/internal/service"
	"eventhub/pkg/validator"
)

type handlers struct {
	svc *service.Service
	log *zerolog.Logger
}

func actorID(c *ginext.Context) string {
	return strings.TrimSpace(c.GetHeader(ActorHeader))
}

// decode reads the JSON body into req. A value of the wrong type is reported
// against its field.
func (h *handlers) decode(c *ginext.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	h.log.Debug().Err(err).Str("path", c.FullPath()).Msg("failed to parse request body")

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		dto.FieldBadFormatError(c, typeErr.Field)
		return false
	}
	dto.BadResponseError(c, dto.FieldBadFormat, "Invalid JSON format")
	return false
}

// bind decodes the JSON body into req and runs its validate tags.
func (h *handlers) bind(c *ginext.Context, req any) bool {
	if !h.decode(c, req) {
		return false
	}
	err := validator.Validate(c.Request.Context(), req)
	if err == nil {
		return true
	}
	var fe *validator.FieldError
	if errors.As(err, &fe) {
		dto.FieldIncorrectError(c, fe.Field, fe.Message)
		return false
	}
	dto.BadResponseError(c, dto.FieldIncorrect, err.Error())
	return false
}

func (h *handlers) submitRequest(c *ginext.Context) {
	var req dto.SubmitRequest
	if !h.decode(c, &req) {
		return
	}

	created, err := h.svc.Requests.Submit(c.Request.Context(), service.SubmitInput{
		SubmittedBy: actorID(c),
		Organizer:   req.Organizer,
		Event:       req.Event,
	})
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessCreatedResponse(c, created)
}

func (h *handlers) listRequests(c *ginext.Context) {
	out, err := h.svc.Requests.List(c.Request.Context(), actorID(c), c.Query("status"))
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, out)
}

func (h *handlers) getRequest(c *ginext.Context) {
	req, err := h.svc.Requests.Get(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, req)
}

func (h *handlers) reviewRequest(c *ginext.Context) {
	var req dto.ReviewRequest
	if !h.bind(c, &req) {
		return
	}

	res, err := h.svc.Requests.Transition(c.Request.Context(), service.TransitionInput{
		RequestID:       c.Param("id"),
		ActorID:         actorID(c),
		Status:          req.Status,
		Notes:           req.ReviewNotes,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}

	if res.Listing != nil {
		dto.SuccessResponse(c, dto.ReviewResponse{CreatedListing: res.Listing})
		return
	}
	dto.SuccessResponse(c, res.Request)
}

func (h *handlers) removeRequest(c *ginext.Context) {
	id := c.Param("id")
	if err := h.svc.Requests.Remove(c.Request.Context(), actorID(c), id); err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, map[string]string{"id": id})
}

func (h *handlers) listListings(c *ginext.Context) {
	out, err := h.svc.Listings.ListPublished(c.Request.Context())
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, out)
}

func (h *handlers) getListing(c *ginext.Context) {
	l, err := h.svc.Listings.Get(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	av, err := h.svc.Tickets.Availability(c.Request.Context(), l.ID)
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, dto.ListingResponse{Listing: *l, Availability: av})
}

func (h *handlers) setPublication(c *ginext.Context) {
	var req dto.PublicationRequest
	if !h.bind(c, &req) {
		return
	}
	l, err := h.svc.Listings.SetPublished(c.Request.Context(), actorID(c), c.Param("id"), *req.Published)
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, l)
}

func (h *handlers) reassignOrganizer(c *ginext.Context) {
	var req dto.OrganizerRequest
	if !h.bind(c, &req) {
		return
	}
	l, err := h.svc.Listings.ReassignOrganizer(c.Request.Context(), actorID(c), c.Param("id"), req.OrganizerID)
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, l)
}

func (h *handlers) purchase(c *ginext.Context) {
	var req dto.PurchaseRequest
	if !h.bind(c, &req) {
		return
	}

	t, err := h.svc.Tickets.Purchase(c.Request.Context(), service.PurchaseInput{
		ListingID:   req.ListingID,
		BuyerUserID: actorID(c),
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		BuyerPhone:  req.BuyerPhone,
	})
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessCreatedResponse(c, t)
}

func (h *handlers) getTicket(c *ginext.Context) {
	t, err := h.svc.Tickets.Get(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, t)
}

func (h *handlers) redeem(c *ginext.Context) {
	t, err := h.svc.Tickets.Redeem(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, t)
}

func (h *handlers) redeemPass(c *ginext.Context) {
	var req dto.RedeemPassRequest
	if !h.bind(c, &req) {
		return
	}
	t, err := h.svc.Tickets.RedeemPass(c.Request.Context(), req.QRPayload)
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, t)
}

func (h *handlers) cancelTicket(c *ginext.Context) {
	t, err := h.svc.Tickets.Cancel(c.Request.Context(), actorID(c), c.Param("ticketId"))
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, t)
}

func (h *handlers) createAccount(c *ginext.Context) {
	var req dto.AccountRequest
	if !h.bind(c, &req) {
		return
	}
	u, err := h.svc.Accounts.Provision(c.Request.Context(), actorID(c), service.ProvisionInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessCreatedResponse(c, u)
}

func (h *handlers) authenticate(c *ginext.Context) {
	var req dto.AuthenticateRequest
	if !h.bind(c, &req) {
		return
	}
	u, err := h.svc.Accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		dto.ServiceError(c, h.log, err)
		return
	}
	dto.SuccessResponse(c, u)
}
