package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"eventhub/internal/credential"
	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/internal/pass"
	"eventhub/internal/repo"
	"eventhub/pkg/validator"
)

type OrganizerPolicy string

const (
	// OrganizerReviewer makes the approving reviewer the organizer of record.
	OrganizerReviewer OrganizerPolicy = "reviewer"
	// OrganizerSubmitter prefers the submitting account, then the account
	// owning the organizer contact e-mail, then the reviewer.
	OrganizerSubmitter OrganizerPolicy = "submitter"
)

func ParseOrganizerPolicy(raw string) (OrganizerPolicy, error) {
	switch p := OrganizerPolicy(raw); p {
	case "":
		return OrganizerReviewer, nil
	case OrganizerReviewer, OrganizerSubmitter:
		return p, nil
	}
	return "", fmt.Errorf("unknown organizer policy %q", raw)
}

type Config struct {
	OrganizerPolicy       OrganizerPolicy
	DefaultCapacity       int
	DefaultCurrency       string
	PurchaseMaxAttempts   int
	TransitionMaxAttempts int
	OpTimeout             time.Duration
	NotifyTimeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.OrganizerPolicy == "" {
		c.OrganizerPolicy = OrganizerReviewer
	}
	if c.DefaultCapacity <= 0 {
		c.DefaultCapacity = 100
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
	if c.PurchaseMaxAttempts <= 0 {
		c.PurchaseMaxAttempts = 5
	}
	if c.TransitionMaxAttempts <= 0 {
		c.TransitionMaxAttempts = 3
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 3 * time.Second
	}
	return c
}

// ScanGuard blocks concurrent redemption of one ticket across instances.
type ScanGuard interface {
	Acquire(ctx context.Context, ticketID string) (bool, error)
	Release(ctx context.Context, ticketID string) error
}

type Property struct {
	Repo     repo.Repository
	Notifier notify.Notifier
	Signer   *pass.Signer
	Guard    ScanGuard
	Hasher   *credential.Hasher
	Logger   *zerolog.Logger
	Config   Config
	Now      func() time.Time
}

type Service struct {
	Requests *RequestService
	Tickets  *TicketService
	Listings *ListingService
	Accounts *AccountService
}

func New(props Property) *Service {
	b := &base{
		repo: props.Repo,
		log:  props.Logger,
		cfg:  props.Config.withDefaults(),
		now:  props.Now,
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	if b.log == nil {
		nop := zerolog.Nop()
		b.log = &nop
	}
	notifier := props.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Service{
		Requests: &RequestService{base: b, notifier: notifier},
		Tickets:  &TicketService{base: b, signer: props.Signer, guard: props.Guard},
		Listings: &ListingService{base: b},
		Accounts: &AccountService{base: b, hasher: props.Hasher},
	}
}

type base struct {
	repo repo.Repository
	log  *zerolog.Logger
	cfg  Config
	now  func() time.Time
}

func (b *base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.cfg.OpTimeout)
}

// actor resolves the acting account. Unknown or missing actors are Forbidden.
func (b *base) actor(ctx context.Context, r repo.Reader, actorID string) (*model.User, error) {
	if actorID == "" {
		return nil, model.ErrForbidden
	}
	u, err := r.GetUserByID(ctx, actorID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (b *base) reviewer(ctx context.Context, actorID string) (*model.User, error) {
	u, err := b.actor(ctx, b.repo, actorID)
	if err != nil {
		return nil, err
	}
	if !u.Role.CanReview() {
		return nil, model.ErrForbidden
	}
	return u, nil
}

func (b *base) admin(ctx context.Context, actorID string) (*model.User, error) {
	u, err := b.actor(ctx, b.repo, actorID)
	if err != nil {
		return nil, err
	}
	if !u.Role.IsSuperuser() {
		return nil, model.ErrForbidden
	}
	return u, nil
}

var known = []error{
	model.ErrValidation,
	model.ErrNotFound,
	model.ErrForbidden,
	model.ErrInvalidTransition,
	model.ErrCategoryNotFound,
	model.ErrListingNotFound,
	model.ErrSoldOut,
	model.ErrAlreadyUsed,
	model.ErrTicketCancelled,
	model.ErrInvalidPass,
	model.ErrConflict,
	model.ErrInvalidCredentials,
	model.ErrInternal,
}

// fail passes business errors through and turns everything else into ErrInternal,
// logging the cause server-side.
func (b *base) fail(op string, err error) error {
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	b.log.Error().Err(err).Str("op", op).Msg("operation failed")
	return fmt.Errorf("%s: %w", op, model.ErrInternal)
}

func validate(ctx context.Context, v any) error {
	err := validator.Validate(ctx, v)
	if err == nil {
		return nil
	}
	var fe *validator.FieldError
	if errors.As(err, &fe) {
		return model.Invalid(fe.Field, fe.Message)
	}
	return model.Invalid("", err.Error())
}
