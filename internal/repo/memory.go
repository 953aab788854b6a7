package repo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"eventhub/internal/model"
)

// Memory is a process-local Repository. Transactions are serialized and work on
// a copy of the state that replaces the live one only on commit.
type Memory struct {
	mu    sync.RWMutex
	state *memState
	log   *zerolog.Logger
}

type memState struct {
	requests   map[string]model.EventRequest
	listings   map[string]model.Listing
	tickets    map[string]model.Ticket
	users      map[string]model.User
	categories []model.Category
}

func NewMemory(categories []model.Category, log *zerolog.Logger) *Memory {
	st := &memState{
		requests:   make(map[string]model.EventRequest),
		listings:   make(map[string]model.Listing),
		tickets:    make(map[string]model.Ticket),
		users:      make(map[string]model.User),
		categories: append([]model.Category(nil), categories...),
	}
	return &Memory{state: st, log: log}
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) MigrateUp(string) error {
	m.log.Debug().Msg("memory repository: nothing to migrate")
	return nil
}

func (m *Memory) MigrateDown(string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &memState{
		requests:   make(map[string]model.EventRequest),
		listings:   make(map[string]model.Listing),
		tickets:    make(map[string]model.Ticket),
		users:      make(map[string]model.User),
		categories: m.state.categories,
	}
	return nil
}

func (m *Memory) read() *memState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// The live state is never mutated in place, so a snapshot pointer is safe to read.

func (m *Memory) GetRequest(ctx context.Context, id string) (*model.EventRequest, error) {
	return m.read().GetRequest(ctx, id)
}

func (m *Memory) ListRequests(ctx context.Context, status model.RequestStatus) ([]model.EventRequest, error) {
	return m.read().ListRequests(ctx, status)
}

func (m *Memory) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	return m.read().GetListing(ctx, id)
}

func (m *Memory) ListPublishedListings(ctx context.Context) ([]model.Listing, error) {
	return m.read().ListPublishedListings(ctx)
}

func (m *Memory) CountActiveTickets(ctx context.Context, listingID string) (int, error) {
	return m.read().CountActiveTickets(ctx, listingID)
}

func (m *Memory) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return m.read().GetTicket(ctx, ticketID)
}

func (m *Memory) ListCategories(ctx context.Context) ([]model.Category, error) {
	return m.read().ListCategories(ctx)
}

func (m *Memory) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return m.read().GetUserByID(ctx, id)
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return m.read().GetUserByEmail(ctx, email)
}

func (s *memState) clone() *memState {
	c := &memState{
		requests:   make(map[string]model.EventRequest, len(s.requests)),
		listings:   make(map[string]model.Listing, len(s.listings)),
		tickets:    make(map[string]model.Ticket, len(s.tickets)),
		users:      make(map[string]model.User, len(s.users)),
		categories: s.categories,
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

func (s *memState) CreateRequest(_ context.Context, r *model.EventRequest) error {
	if _, ok := s.requests[r.ID]; ok {
		return model.ErrConflict
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *memState) GetRequest(_ context.Context, id string) (*model.EventRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &r, nil
}

func (s *memState) GetRequestForUpdate(ctx context.Context, id string) (*model.EventRequest, error) {
	return s.GetRequest(ctx, id)
}

func (s *memState) ListRequests(_ context.Context, status model.RequestStatus) ([]model.EventRequest, error) {
	var out []model.EventRequest
	for _, r := range s.requests {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *memState) UpdateRequestReview(_ context.Context, r *model.EventRequest) error {
	if _, ok := s.requests[r.ID]; !ok {
		return model.ErrNotFound
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *memState) DeleteRequest(_ context.Context, id string) error {
	if _, ok := s.requests[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.requests, id)
	return nil
}

func (s *memState) CreateListing(_ context.Context, l *model.Listing) error {
	if _, ok := s.listings[l.ID]; ok {
		return model.ErrConflict
	}
	for _, existing := range s.listings {
		if existing.Slug == l.Slug || existing.RequestID == l.RequestID {
			return model.ErrConflict
		}
	}
	s.listings[l.ID] = *l
	return nil
}

func (s *memState) GetListing(_ context.Context, id string) (*model.Listing, error) {
	l, ok := s.listings[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &l, nil
}

func (s *memState) GetListingForUpdate(ctx context.Context, id string) (*model.Listing, error) {
	return s.GetListing(ctx, id)
}

func (s *memState) ListPublishedListings(_ context.Context) ([]model.Listing, error) {
	var out []model.Listing
	for _, l := range s.listings {
		if l.Status == model.ListingPublished {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (s *memState) UpdateListing(_ context.Context, l *model.Listing) error {
	if _, ok := s.listings[l.ID]; !ok {
		return model.ErrNotFound
	}
	s.listings[l.ID] = *l
	return nil
}

func (s *memState) CountActiveTickets(_ context.Context, listingID string) (int, error) {
	n := 0
	for _, t := range s.tickets {
		if t.ListingID == listingID && t.Status.HoldsCapacity() {
			n++
		}
	}
	return n, nil
}

func (s *memState) CreateTicket(_ context.Context, t *model.Ticket) error {
	if _, ok := s.tickets[t.TicketID]; ok {
		return model.ErrConflict
	}
	if _, ok := s.listings[t.ListingID]; !ok {
		return model.ErrNotFound
	}
	s.tickets[t.TicketID] = *t
	return nil
}

func (s *memState) GetTicket(_ context.Context, ticketID string) (*model.Ticket, error) {
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &t, nil
}

func (s *memState) GetTicketForUpdate(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return s.GetTicket(ctx, ticketID)
}

func (s *memState) UpdateTicketStatus(_ context.Context, t *model.Ticket) error {
	if _, ok := s.tickets[t.TicketID]; !ok {
		return model.ErrNotFound
	}
	s.tickets[t.TicketID] = *t
	return nil
}

func (s *memState) ListCategories(_ context.Context) ([]model.Category, error) {
	return append([]model.Category(nil), s.categories...), nil
}

func (s *memState) CreateUser(_ context.Context, u *model.User) error {
	if _, ok := s.users[u.ID]; ok {
		return model.ErrConflict
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.ErrConflict
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *memState) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &u, nil
}

func (s *memState) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, model.ErrNotFound
}
