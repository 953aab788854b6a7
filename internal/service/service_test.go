package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"eventhub/internal/credential"
	"eventhub/internal/model"
	"eventhub/internal/notify"
	"eventhub/internal/pass"
	"eventhub/internal/repo"
)

var (
	clockStart = time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)
	eventStart = time.Date(2030, 6, 1, 18, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	svc      *Service
	repo     *repo.Memory
	notifier *recordingNotifier
	signer   *pass.Signer

	admin     *model.User
	reviewer  *model.User
	organizer *model.User
	buyer     *model.User
}

type option func(*Property)

func withConfig(cfg Config) option {
	return func(p *Property) { p.Config = cfg }
}

// withConflicts routes the fixture through c, which wraps the memory repository.
func withConflicts(c *conflictRepo) option {
	return func(p *Property) {
		c.Memory = p.Repo.(*repo.Memory)
		p.Repo = c
	}
}

func withGuard(g ScanGuard) option {
	return func(p *Property) { p.Guard = g }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	log := zerolog.Nop()
	mem := repo.NewMemory(repo.SeedCategories(), &log)

	seed, err := pass.GenerateSeed()
	require.NoError(t, err)
	signer, err := pass.NewSigner(seed)
	require.NoError(t, err)
	enc, err := credential.NewEncoder("service-test-secret")
	require.NoError(t, err)

	f := &fixture{repo: mem, notifier: &recordingNotifier{}, signer: signer}

	var mu sync.Mutex
	now := clockStart
	props := Property{
		Repo:     mem,
		Notifier: f.notifier,
		Signer:   signer,
		Hasher:   credential.NewHasher(enc, bcrypt.MinCost),
		Logger:   &log,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Millisecond)
			return now
		},
	}
	for _, opt := range opts {
		opt(&props)
	}
	f.svc = New(props)

	f.admin = f.user(t, "admin@example.com", model.RoleAdmin)
	f.reviewer = f.user(t, "reviewer@example.com", model.RoleReviewer)
	f.organizer = f.user(t, "ann@example.com", model.RoleOrganizer)
	f.buyer = f.user(t, "buyer@example.com", model.RoleUser)
	return f
}

func (f *fixture) user(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{ID: "user-" + email, Email: email, Name: email, Role: role, CreatedAt: clockStart}
	require.NoError(t, f.repo.WithinTx(context.Background(), func(ctx context.Context, tx repo.Tx) error {
		return tx.CreateUser(ctx, u)
	}))
	return u
}

func submission() SubmitInput {
	return SubmitInput{
		Organizer: model.OrganizerContact{
			Name:         "Ann Organizer",
			Email:        "Ann@Example.com",
			Phone:        "+1 555 010 2000",
			Organization: "Jazz Society",
		},
		Event: model.EventDetails{
			Name:               "Summer Jazz Night",
			Description:        "Open air jazz by the river",
			Category:           "Live Music",
			StartsAt:           eventStart,
			EndsAt:             eventStart.Add(4 * time.Hour),
			VenueName:          "River Park",
			VenueAddress:       "1 River Rd",
			City:               "Springfield",
			State:              "IL",
			Zip:                "62701",
			Country:            "US",
			VenueType:          "Outdoor",
			ExpectedAttendance: "101-500",
			TicketPrice:        decimal.NewNullDecimal(decimal.RequireFromString("25.00")),
			Currency:           "usd",
		},
	}
}

// approved submits and approves a request, returning the published listing.
func (f *fixture) approved(t *testing.T, mutate func(*SubmitInput)) *model.Listing {
	t.Helper()
	in := submission()
	if mutate != nil {
		mutate(&in)
	}
	req, err := f.svc.Requests.Submit(context.Background(), in)
	require.NoError(t, err)
	res, err := f.svc.Requests.Transition(context.Background(), TransitionInput{
		RequestID: req.ID,
		ActorID:   f.reviewer.ID,
		Status:    "APPROVED",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Listing)
	return res.Listing
}

func buyerInput(listingID, email string) PurchaseInput {
	return PurchaseInput{ListingID: listingID, BuyerName: "Buyer " + email, BuyerEmail: email}
}

// conflictRepo makes the first N ticket or listing inserts collide.
type conflictRepo struct {
	*repo.Memory
	mu              sync.Mutex
	ticketConflicts int
	slugConflicts   int
}

func (c *conflictRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error {
	return c.Memory.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return fn(ctx, &conflictTx{Tx: tx, parent: c})
	})
}

type conflictTx struct {
	repo.Tx
	parent *conflictRepo
}

func (c *conflictTx) CreateTicket(ctx context.Context, t *model.Ticket) error {
	c.parent.mu.Lock()
	if c.parent.ticketConflicts > 0 {
		c.parent.ticketConflicts--
		c.parent.mu.Unlock()
		return errors.Join(model.ErrConflict, errors.New("duplicate ticket_id"))
	}
	c.parent.mu.Unlock()
	return c.Tx.CreateTicket(ctx, t)
}

func (c *conflictTx) CreateListing(ctx context.Context, l *model.Listing) error {
	c.parent.mu.Lock()
	if c.parent.slugConflicts > 0 {
		c.parent.slugConflicts--
		c.parent.mu.Unlock()
		return errors.Join(model.ErrConflict, errors.New("duplicate slug"))
	}
	c.parent.mu.Unlock()
	return c.Tx.CreateListing(ctx, l)
}

type fakeGuard struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{held: make(map[string]bool)}
}

func (g *fakeGuard) Acquire(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.held[id] {
		return false, nil
	}
	g.held[id] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, id)
	g.released = append(g.released, id)
	return nil
}
