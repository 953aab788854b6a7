package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestPending     RequestStatus = "PENDING"
	RequestUnderReview RequestStatus = "UNDER_REVIEW"
	RequestApproved    RequestStatus = "APPROVED"
	RequestRejected    RequestStatus = "REJECTED"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestUnderReview, RequestApproved, RequestRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further status write is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected
}

func ParseRequestStatus(raw string) (RequestStatus, error) {
	s := RequestStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown request status %q", raw)}
	}
	return s, nil
}

type TicketStatus string

const (
	TicketActive    TicketStatus = "ACTIVE"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketActive, TicketUsed, TicketCancelled:
		return true
	}
	return false
}

// HoldsCapacity reports whether a ticket in this status counts against the listing capacity.
func (s TicketStatus) HoldsCapacity() bool {
	return s == TicketActive || s == TicketUsed
}

type VenueType string

const (
	VenueOutdoor VenueType = "OUTDOOR"
	VenueIndoor  VenueType = "INDOOR"
	VenueMixed   VenueType = "MIXED"
	VenueVirtual VenueType = "VIRTUAL"
	VenueHybrid  VenueType = "HYBRID"
)

func (v VenueType) Valid() bool {
	switch v {
	case VenueOutdoor, VenueIndoor, VenueMixed, VenueVirtual, VenueHybrid:
		return true
	}
	return false
}

type ListingStatus string

const (
	ListingPublished   ListingStatus = "PUBLISHED"
	ListingUnpublished ListingStatus = "UNPUBLISHED"
)

type Role string

const (
	RoleUser      Role = "USER"
	RoleOrganizer Role = "ORGANIZER"
	RoleReviewer  Role = "REVIEWER"
	RoleAdmin     Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOrganizer, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}

func (r Role) IsSuperuser() bool {
	return r == RoleAdmin
}

func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", raw)}
	}
	return r, nil
}

type OrganizerContact struct {
	Name                    string `json:"name" validate:"required,max=255,singleline"`
	Email                   string `json:"email" validate:"required,email"`
	Phone                   string `json:"phone" validate:"required,phone"`
	Organization            string `json:"organization" validate:"required,max=255"`
	OrganizationWebsite     string `json:"organizationWebsite,omitempty" validate:"omitempty,url"`
	OrganizationDescription string `json:"organizationDescription,omitempty"`
}

type EventDetails struct {
	Name                string              `json:"name" validate:"required,min=3,max=255,singleline"`
	Description         string              `json:"description" validate:"required"`
	Category            string              `json:"category" validate:"required"`
	StartsAt            time.Time           `json:"startsAt" validate:"required"`
	EndsAt              time.Time           `json:"endsAt" validate:"required"`
	VenueName           string              `json:"venueName" validate:"required"`
	VenueAddress        string              `json:"venueAddress" validate:"required"`
	City                string              `json:"city" validate:"required"`
	State               string              `json:"state" validate:"required"`
	Zip                 string              `json:"zip" validate:"required"`
	Country             string              `json:"country" validate:"required"`
	VenueType           string              `json:"venueType" validate:"required"`
	ExpectedAttendance  string              `json:"expectedAttendance" validate:"required"`
	TicketPrice         decimal.NullDecimal `json:"ticketPrice"`
	Currency            string              `json:"currency" validate:"omitempty,currency"`
	IsFree              bool                `json:"isFree"`
	AgeRestriction      string              `json:"ageRestriction,omitempty"`
	Accessibility       bool                `json:"accessibility"`
	Parking             bool                `json:"parking"`
	Food                bool                `json:"food"`
	Alcohol             bool                `json:"alcohol"`
	Website             string              `json:"website,omitempty" validate:"omitempty,url"`
	SpecialRequirements string              `json:"specialRequirements,omitempty"`
	InsuranceInfo       string              `json:"insuranceInfo,omitempty"`
	PermitsObtained     bool                `json:"permitsObtained"`
	EmergencyPlan       string              `json:"emergencyPlan,omitempty"`
}

// EventRequest is an organizer's proposal awaiting review.
type EventRequest struct {
	ID              string           `json:"id"`
	SubmittedBy     *string          `json:"submittedBy,omitempty"`
	Organizer       OrganizerContact `json:"organizer"`
	Event           EventDetails     `json:"event"`
	Status          RequestStatus    `json:"status"`
	ReviewerID      *string          `json:"reviewerId,omitempty"`
	ReviewNotes     string           `json:"reviewNotes,omitempty"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	ListingID       *string          `json:"listingId,omitempty"`
	SubmittedAt     time.Time        `json:"submittedAt"`
	ReviewedAt      *time.Time       `json:"reviewedAt,omitempty"`
}

// Listing is a published, purchasable event with a fixed capacity.
type Listing struct {
	ID             string          `json:"id"`
	Slug           string          `json:"slug"`
	RequestID      string          `json:"requestId"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	CategoryID     string          `json:"categoryId"`
	CategoryName   string          `json:"categoryName"`
	StartsAt       time.Time       `json:"startsAt"`
	EndsAt         time.Time       `json:"endsAt"`
	VenueName      string          `json:"venueName"`
	VenueAddress   string          `json:"venueAddress"`
	City           string          `json:"city"`
	State          string          `json:"state"`
	Zip            string          `json:"zip"`
	Country        string          `json:"country"`
	VenueType      VenueType       `json:"venueType"`
	Capacity       int             `json:"capacity"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	IsFree         bool            `json:"isFree"`
	AgeRestriction string          `json:"ageRestriction,omitempty"`
	Accessibility  bool            `json:"accessibility"`
	Parking        bool            `json:"parking"`
	Food           bool            `json:"food"`
	Alcohol        bool            `json:"alcohol"`
	Website        string          `json:"website,omitempty"`
	OrganizerID    string          `json:"organizerId"`
	Status         ListingStatus   `json:"status"`
	PublishedAt    *time.Time      `json:"publishedAt,omitempty"`
	TicketSeq      int64           `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type Ticket struct {
	ID          string          `json:"id"`
	TicketID    string          `json:"ticketId"`
	ListingID   string          `json:"listingId"`
	BuyerUserID *string         `json:"buyerUserId,omitempty"`
	BuyerName   string          `json:"buyerName"`
	BuyerEmail  string          `json:"buyerEmail"`
	BuyerPhone  string          `json:"buyerPhone,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Status      TicketStatus    `json:"status"`
	IsUsed      bool            `json:"isUsed"`
	UsedAt      *time.Time      `json:"usedAt,omitempty"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
	QRPayload   string          `json:"qrPayload"`
	PurchasedAt time.Time       `json:"purchasedAt"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
