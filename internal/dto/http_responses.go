package dto

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventhub/internal/model"
	"eventhub/internal/service"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	Forbidden          = "FORBIDDEN"
	NotFound           = "NOT_FOUND"
	ListingNotFound    = "LISTING_NOT_FOUND"
	InvalidTransition  = "INVALID_TRANSITION"
	SoldOut            = "SOLD_OUT"
	AlreadyUsed        = "ALREADY_USED"
	TicketCancelled    = "TICKET_CANCELLED"
	InvalidPass        = "INVALID_PASS"
	Conflict           = "CONFLICT"
	CategoryNotFound   = "CATEGORY_NOT_FOUND"
	InvalidCredentials = "INVALID_CREDENTIALS"
)

type SubmitRequest struct {
	Organizer model.OrganizerContact `json:"organizer"`
	Event     model.EventDetails     `json:"event"`
}

type ReviewRequest struct {
	Status          string `json:"status" validate:"required"`
	ReviewNotes     string `json:"reviewNotes"`
	RejectionReason string `json:"rejectionReason"`
}

// ReviewResponse is the approval body: the request is consumed, so
// eventRequest is always null.
type ReviewResponse struct {
	EventRequest   *model.EventRequest `json:"eventRequest"`
	CreatedListing *model.Listing      `json:"createdListing"`
}

type PurchaseRequest struct {
	ListingID  string `json:"listingId" validate:"required"`
	BuyerName  string `json:"buyerName" validate:"required"`
	BuyerEmail string `json:"buyerEmail" validate:"required"`
	BuyerPhone string `json:"buyerPhone"`
}

type RedeemPassRequest struct {
	QRPayload string `json:"qrPayload" validate:"required"`
}

type PublicationRequest struct {
	Published *bool `json:"published" validate:"required"`
}

type OrganizerRequest struct {
	OrganizerID string `json:"organizerId" validate:"required"`
}

type AccountRequest struct {
	Email    string `json:"email" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"`
}

type AuthenticateRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ListingResponse struct {
	model.Listing
	Availability service.Availability `json:"availability"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.JSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func FieldIncorrectError(c *ginext.Context, fieldName, reason string) {
	desc := "Field '" + fieldName + "' is incorrect"
	if reason != "" {
		desc += ": " + reason
	}
	BadResponseError(c, FieldIncorrect, desc)
}

type mapping struct {
	target error
	status int
	code   string
	desc   string
}

// Order matters: ErrListingNotFound before ErrNotFound.
var mappings = []mapping{
	{model.ErrInvalidPass, http.StatusBadRequest, InvalidPass, "Ticket pass is not valid"},
	{model.ErrInvalidCredentials, http.StatusUnauthorized, InvalidCredentials, "Invalid e-mail or password"},
	{model.ErrForbidden, http.StatusForbidden, Forbidden, "Operation is not allowed"},
	{model.ErrListingNotFound, http.StatusNotFound, ListingNotFound, "Listing not found"},
	{model.ErrNotFound, http.StatusNotFound, NotFound, "Resource not found"},
	{model.ErrInvalidTransition, http.StatusConflict, InvalidTransition, "Status change is not allowed"},
	{model.ErrSoldOut, http.StatusConflict, SoldOut, "Listing is sold out"},
	{model.ErrAlreadyUsed, http.StatusConflict, AlreadyUsed, "Ticket has already been used"},
	{model.ErrTicketCancelled, http.StatusConflict, TicketCancelled, "Ticket is cancelled"},
	{model.ErrConflict, http.StatusConflict, Conflict, "Resource already exists"},
	{model.ErrCategoryNotFound, http.StatusUnprocessableEntity, CategoryNotFound, "Event category is not recognised"},
}

// ServiceError writes the response for an error returned by the service layer.
func ServiceError(c *ginext.Context, log *zerolog.Logger, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "" {
			BadResponseError(c, FieldIncorrect, ve.Reason)
			return
		}
		FieldIncorrectError(c, ve.Field, ve.Reason)
		return
	}
	if errors.Is(err, model.ErrValidation) {
		BadResponseError(c, FieldIncorrect, "Request is invalid")
		return
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			ErrorResponse(c, m.status, m.code, m.desc)
			return
		}
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	InternalServerError(c)
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
