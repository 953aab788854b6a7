package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/model"
	"eventhub/internal/pass"
)

func capacity(n int) func(*SubmitInput) {
	return func(in *SubmitInput) { in.Event.ExpectedAttendance = fmt.Sprint(n) }
}

func TestPurchase(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, nil)

	tk, err := f.svc.Tickets.Purchase(context.Background(), PurchaseInput{
		ListingID:   l.ID,
		BuyerUserID: f.buyer.ID,
		BuyerName:   " Bob Buyer ",
		BuyerEmail:  "Bob@Example.com",
	})
	require.NoError(t, err)

	assert.True(t, pass.ValidTicketID(tk.TicketID), tk.TicketID)
	assert.Equal(t, model.TicketActive, tk.Status)
	assert.False(t, tk.IsUsed)
	assert.Equal(t, "Bob Buyer", tk.BuyerName)
	assert.Equal(t, "bob@example.com", tk.BuyerEmail)
	require.NotNil(t, tk.BuyerUserID)
	assert.Equal(t, f.buyer.ID, *tk.BuyerUserID)
	assert.True(t, tk.Price.Equal(decimal.RequireFromString("25")))
	assert.Equal(t, "USD", tk.Currency)

	claims, err := f.signer.Verify(tk.QRPayload)
	require.NoError(t, err)
	assert.Equal(t, tk.TicketID, claims.TicketID)
	assert.Equal(t, l.ID, claims.ListingID)
	assert.Equal(t, "bob@example.com", claims.BuyerEmail)
	assert.Equal(t, l.EndsAt.Unix(), claims.ValidUntil)

	got, err := f.svc.Tickets.Get(context.Background(), tk.TicketID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
}

func TestPurchaseUnknownBuyerAccountIsAnonymous(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, nil)

	in := buyerInput(l.ID, "guest@example.com")
	in.BuyerUserID = "no-such-user"
	tk, err := f.svc.Tickets.Purchase(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, tk.BuyerUserID)
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, nil)

	_, err := f.svc.Tickets.Purchase(context.Background(), PurchaseInput{ListingID: l.ID, BuyerName: "Bob", BuyerEmail: "nope"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.Tickets.Purchase(context.Background(), PurchaseInput{ListingID: l.ID, BuyerEmail: "bob@example.com"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPurchaseListingNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Tickets.Purchase(context.Background(), buyerInput("missing", "a@example.com"))
	assert.ErrorIs(t, err, model.ErrListingNotFound)

	l := f.approved(t, nil)
	_, err = f.svc.Listings.SetPublished(context.Background(), f.admin.ID, l.ID, false)
	require.NoError(t, err)

	_, err = f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	assert.ErrorIs(t, err, model.ErrListingNotFound)
}

func TestConcurrentPurchasesRespectCapacity(t *testing.T) {
	const (
		buyers = 25
		seats  = 7
	)
	f := newFixture(t)
	l := f.approved(t, capacity(seats))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  []string
		soldOut int
		other   []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, fmt.Sprintf("buyer%d@example.com", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued = append(issued, tk.TicketID)
			case errors.Is(err, model.ErrSoldOut):
				soldOut++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Len(t, issued, seats)
	assert.Equal(t, buyers-seats, soldOut)

	seen := make(map[string]bool, len(issued))
	for _, id := range issued {
		assert.False(t, seen[id], "duplicate ticket id %s", id)
		seen[id] = true
	}

	sold, err := f.repo.CountActiveTickets(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, seats, sold)

	av, err := f.svc.Tickets.Availability(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, Availability{Capacity: seats, Sold: seats, Remaining: 0}, av)
}

func TestLastSeatCancelFreesCapacity(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, capacity(1))

	results := make(chan error, 2)
	tickets := make(chan *model.Ticket, 2)
	var wg sync.WaitGroup
	for _, email := range []string{"first@example.com", "second@example.com"} {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, email))
			results <- err
			if err == nil {
				tickets <- tk
			}
		}(email)
	}
	wg.Wait()
	close(results)
	close(tickets)

	var ok, sold int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrSoldOut):
			sold++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, sold)
	winner := <-tickets

	cancelled, err := f.svc.Tickets.Cancel(context.Background(), f.reviewer.ID, winner.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	third, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "third@example.com"))
	require.NoError(t, err)
	assert.NotEqual(t, winner.TicketID, third.TicketID)
	assert.Contains(t, third.TicketID, "-000002-")
}

func TestUsedTicketsHoldCapacity(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, capacity(1))

	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Tickets.Redeem(context.Background(), tk.TicketID)
	require.NoError(t, err)

	_, err = f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "b@example.com"))
	assert.ErrorIs(t, err, model.ErrSoldOut)
}

func TestPurchaseRetriesTicketIDConflict(t *testing.T) {
	conflicts := &conflictRepo{}
	f := newFixture(t, withConflicts(conflicts))
	l := f.approved(t, capacity(3))

	conflicts.mu.Lock()
	conflicts.ticketConflicts = 2
	conflicts.mu.Unlock()

	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, model.TicketActive, tk.Status)

	sold, err := f.repo.CountActiveTickets(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sold)
}

func TestPurchaseConflictExhaustionIsInternal(t *testing.T) {
	conflicts := &conflictRepo{}
	f := newFixture(t, withConflicts(conflicts), withConfig(Config{PurchaseMaxAttempts: 3}))
	l := f.approved(t, capacity(3))

	conflicts.mu.Lock()
	conflicts.ticketConflicts = 100
	conflicts.mu.Unlock()

	_, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.ErrorIs(t, err, model.ErrInternal)
	assert.Equal(t, 97, conflicts.ticketConflicts)

	sold, err := f.repo.CountActiveTickets(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Zero(t, sold)
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, nil)
	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)

	used, err := f.svc.Tickets.Redeem(context.Background(), tk.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketUsed, used.Status)
	assert.True(t, used.IsUsed)
	require.NotNil(t, used.UsedAt)

	_, err = f.svc.Tickets.Redeem(context.Background(), tk.TicketID)
	assert.ErrorIs(t, err, model.ErrAlreadyUsed)

	stored, err := f.repo.GetTicket(context.Background(), tk.TicketID)
	require.NoError(t, err)
	assert.Equal(t, *used.UsedAt, *stored.UsedAt)

	_, err = f.svc.Tickets.Redeem(context.Background(), "TKT-000000-000001-AAAAAAAA")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRedeemCancelledTicket(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, nil)
	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Tickets.Cancel(context.Background(), f.reviewer.ID, tk.TicketID)
	require.NoError(t, err)

	_, err = f.svc.Tickets.Redeem(context.Background(), tk.TicketID)
	assert.ErrorIs(t, err, model.ErrTicketCancelled)
}

func TestRedeemConcurrentScansUseOnce(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, nil)
	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)

	const scanners = 10
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Tickets.Redeem(context.Background(), tk.TicketID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			assert.ErrorIs(t, err, model.ErrAlreadyUsed)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestRedeemWithScanGuard(t *testing.T) {
	guard := newFakeGuard()
	f := newFixture(t, withGuard(guard))
	l := f.approved(t, nil)
	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)

	guard.held[tk.TicketID] = true
	_, err = f.svc.Tickets.Redeem(context.Background(), tk.TicketID)
	assert.ErrorIs(t, err, model.ErrAlreadyUsed)

	stored, err := f.repo.GetTicket(context.Background(), tk.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketActive, stored.Status)

	delete(guard.held, tk.TicketID)
	_, err = f.svc.Tickets.Redeem(context.Background(), tk.TicketID)
	require.NoError(t, err)
	assert.True(t, guard.held[tk.TicketID])
	assert.Empty(t, guard.released)
}

func TestRedeemReleasesGuardOnFailure(t *testing.T) {
	guard := newFakeGuard()
	f := newFixture(t, withGuard(guard))

	_, err := f.svc.Tickets.Redeem(context.Background(), "TKT-000000-000001-AAAAAAAA")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, []string{"TKT-000000-000001-AAAAAAAA"}, guard.released)
	assert.Empty(t, guard.held)
}

func TestRedeemProceedsWhenGuardIsDown(t *testing.T) {
	guard := newFakeGuard()
	guard.err = errors.New("redis: connection refused")
	f := newFixture(t, withGuard(guard))
	l := f.approved(t, nil)
	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)

	used, err := f.svc.Tickets.Redeem(context.Background(), tk.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketUsed, used.Status)
}

func TestRedeemPass(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, nil)
	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)

	t.Run("tampered", func(t *testing.T) {
		raw := []byte(tk.QRPayload)
		if raw[3] == 'A' {
			raw[3] = 'B'
		} else {
			raw[3] = 'A'
		}
		_, err := f.svc.Tickets.RedeemPass(context.Background(), string(raw))
		assert.ErrorIs(t, err, model.ErrInvalidPass)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.svc.Tickets.RedeemPass(context.Background(), "not a pass")
		assert.ErrorIs(t, err, model.ErrInvalidPass)
	})

	t.Run("foreign signer", func(t *testing.T) {
		seed, err := pass.GenerateSeed()
		require.NoError(t, err)
		other, err := pass.NewSigner(seed)
		require.NoError(t, err)
		forged, err := other.Mint(pass.Claims{TicketID: tk.TicketID, ListingID: l.ID, BuyerEmail: "a@example.com", ValidUntil: l.EndsAt.Unix()})
		require.NoError(t, err)

		_, err = f.svc.Tickets.RedeemPass(context.Background(), forged)
		assert.ErrorIs(t, err, model.ErrInvalidPass)
	})

	t.Run("claims mismatch", func(t *testing.T) {
		minted, err := f.signer.Mint(pass.Claims{TicketID: tk.TicketID, ListingID: l.ID, BuyerEmail: "mallory@example.com", ValidUntil: l.EndsAt.Unix()})
		require.NoError(t, err)

		_, err = f.svc.Tickets.RedeemPass(context.Background(), minted)
		assert.ErrorIs(t, err, model.ErrInvalidPass)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		minted, err := f.signer.Mint(pass.Claims{TicketID: "TKT-000000-000009-AAAAAAAA", ListingID: l.ID, BuyerEmail: "a@example.com"})
		require.NoError(t, err)

		_, err = f.svc.Tickets.RedeemPass(context.Background(), minted)
		assert.ErrorIs(t, err, model.ErrInvalidPass)
	})

	t.Run("expired", func(t *testing.T) {
		minted, err := f.signer.Mint(pass.Claims{TicketID: tk.TicketID, ListingID: l.ID, BuyerEmail: "a@example.com", ValidUntil: clockStart.Add(-1).Unix()})
		require.NoError(t, err)

		_, err = f.svc.Tickets.RedeemPass(context.Background(), minted)
		assert.ErrorIs(t, err, model.ErrInvalidPass)
	})

	stored, err := f.repo.GetTicket(context.Background(), tk.TicketID)
	require.NoError(t, err)
	require.Equal(t, model.TicketActive, stored.Status)

	used, err := f.svc.Tickets.RedeemPass(context.Background(), " "+tk.QRPayload+"\n")
	require.NoError(t, err)
	assert.Equal(t, model.TicketUsed, used.Status)

	_, err = f.svc.Tickets.RedeemPass(context.Background(), tk.QRPayload)
	assert.ErrorIs(t, err, model.ErrAlreadyUsed)
}

func TestCancelPermissions(t *testing.T) {
	f := newFixture(t, withConfig(Config{OrganizerPolicy: OrganizerSubmitter}))
	l := f.approved(t, nil)
	require.Equal(t, f.organizer.ID, l.OrganizerID)

	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Tickets.Cancel(context.Background(), f.buyer.ID, tk.TicketID)
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.Tickets.Cancel(context.Background(), "", tk.TicketID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	cancelled, err := f.svc.Tickets.Cancel(context.Background(), f.organizer.ID, tk.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketCancelled, cancelled.Status)

	_, err = f.svc.Tickets.Cancel(context.Background(), f.organizer.ID, tk.TicketID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.svc.Tickets.Cancel(context.Background(), f.reviewer.ID, "TKT-000000-000001-AAAAAAAA")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCancelUsedTicket(t *testing.T) {
	f := newFixture(t)
	l := f.approved(t, nil)
	tk, err := f.svc.Tickets.Purchase(context.Background(), buyerInput(l.ID, "a@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Tickets.Redeem(context.Background(), tk.TicketID)
	require.NoError(t, err)

	_, err = f.svc.Tickets.Cancel(context.Background(), f.admin.ID, tk.TicketID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestAvailabilityUnknownListing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Tickets.Availability(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrListingNotFound)
}
