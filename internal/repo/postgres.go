package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"eventhub/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repository struct {
	store
	db *dbpg.DB
}

type store struct {
	q   querier
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{store: store{q: db.Master, log: log}, db: db}, nil
}

func (r *repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &store{q: tx, log: r.log}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPgError(err))
	}
	return nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	return r.runMigrations(migrationsDir, "*.up.sql", false)
}

func (r *repository) MigrateDown(migrationsDir string) error {
	return r.runMigrations(migrationsDir, "*.down.sql", true)
}

func (r *repository) runMigrations(dir, pattern string, reverse bool) error {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.Master.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
		r.log.Debug().Str("file", filepath.Base(file)).Msg("migration applied")
	}

	r.log.Info().Msgf("Migrations %s applied from %s", pattern, dir)
	return nil
}

const requestColumns = `
	id, submitted_by, organizer, event, status, reviewer_id, review_notes,
	rejection_reason, listing_id, submitted_at, reviewed_at`

func (s *store) CreateRequest(ctx context.Context, r *model.EventRequest) error {
	organizer, err := json.Marshal(r.Organizer)
	if err != nil {
		return fmt.Errorf("failed to encode organizer: %w", err)
	}
	event, err := json.Marshal(r.Event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO event_requests (id, submitted_by, organizer, event, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.SubmittedBy, organizer, event, r.Status, r.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event request: %w", mapPgError(err))
	}
	return nil
}

func (s *store) GetRequest(ctx context.Context, id string) (*model.EventRequest, error) {
	return s.getRequest(ctx, `SELECT`+requestColumns+` FROM event_requests WHERE id = $1`, id)
}

func (s *store) GetRequestForUpdate(ctx context.Context, id string) (*model.EventRequest, error) {
	return s.getRequest(ctx, `SELECT`+requestColumns+` FROM event_requests WHERE id = $1 FOR UPDATE`, id)
}

func (s *store) getRequest(ctx context.Context, query, id string) (*model.EventRequest, error) {
	r, err := scanRequest(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event request: %w", mapPgError(err))
	}
	return r, nil
}

func (s *store) ListRequests(ctx context.Context, status model.RequestStatus) ([]model.EventRequest, error) {
	query := `SELECT` + requestColumns + ` FROM event_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY submitted_at DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list event requests: %w", err)
	}
	defer rows.Close()

	var out []model.EventRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *store) UpdateRequestReview(ctx context.Context, r *model.EventRequest) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE event_requests
		SET status = $1, reviewer_id = $2, review_notes = $3, rejection_reason = $4,
		    listing_id = $5, reviewed_at = $6
		WHERE id = $7
	`, r.Status, r.ReviewerID, r.ReviewNotes, r.RejectionReason, r.ListingID, r.ReviewedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update event request: %w", mapPgError(err))
	}
	return expectOne(res)
}

func (s *store) DeleteRequest(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM event_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event request: %w", mapPgError(err))
	}
	return expectOne(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*model.EventRequest, error) {
	var (
		r                model.EventRequest
		organizer, event []byte
	)
	if err := row.Scan(
		&r.ID, &r.SubmittedBy, &organizer, &event, &r.Status, &r.ReviewerID, &r.ReviewNotes,
		&r.RejectionReason, &r.ListingID, &r.SubmittedAt, &r.ReviewedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(organizer, &r.Organizer); err != nil {
		return nil, fmt.Errorf("decode organizer: %w", err)
	}
	if err := json.Unmarshal(event, &r.Event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &r, nil
}

const listingColumns = `
	l.id, l.slug, l.request_id, l.name, l.description, l.category_id, c.name,
	l.starts_at, l.ends_at, l.venue_name, l.venue_address, l.city, l.state, l.zip, l.country,
	l.venue_type, l.capacity, l.price, l.currency, l.is_free, l.age_restriction,
	l.accessibility, l.parking, l.food, l.alcohol, l.website, l.organizer_id, l.status,
	l.published_at, l.ticket_seq, l.created_at`

const listingFrom = ` FROM listings l JOIN categories c ON c.id = l.category_id`

func (s *store) CreateListing(ctx context.Context, l *model.Listing) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO listings (
			id, slug, request_id, name, description, category_id, starts_at, ends_at,
			venue_name, venue_address, city, state, zip, country, venue_type, capacity,
			price, currency, is_free, age_restriction, accessibility, parking, food, alcohol,
			website, organizer_id, status, published_at, ticket_seq, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30
		)
	`,
		l.ID, l.Slug, l.RequestID, l.Name, l.Description, l.CategoryID, l.StartsAt, l.EndsAt,
		l.VenueName, l.VenueAddress, l.City, l.State, l.Zip, l.Country, l.VenueType, l.Capacity,
		l.Price, l.Currency, l.IsFree, l.AgeRestriction, l.Accessibility, l.Parking, l.Food, l.Alcohol,
		l.Website, l.OrganizerID, l.Status, l.PublishedAt, l.TicketSeq, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", mapPgError(err))
	}
	return nil
}

func (s *store) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	return s.getListing(ctx, `SELECT`+listingColumns+listingFrom+` WHERE l.id = $1`, id)
}

func (s *store) GetListingForUpdate(ctx context.Context, id string) (*model.Listing, error) {
	return s.getListing(ctx, `SELECT`+listingColumns+listingFrom+` WHERE l.id = $1 FOR UPDATE OF l`, id)
}

func (s *store) getListing(ctx context.Context, query, id string) (*model.Listing, error) {
	l, err := scanListing(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", mapPgError(err))
	}
	return l, nil
}

func (s *store) ListPublishedListings(ctx context.Context) ([]model.Listing, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT`+listingColumns+listingFrom+` WHERE l.status = $1 ORDER BY l.starts_at ASC`,
		model.ListingPublished,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *store) UpdateListing(ctx context.Context, l *model.Listing) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE listings
		SET organizer_id = $1, status = $2, published_at = $3, ticket_seq = $4
		WHERE id = $5
	`, l.OrganizerID, l.Status, l.PublishedAt, l.TicketSeq, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", mapPgError(err))
	}
	return expectOne(res)
}

func scanListing(row rowScanner) (*model.Listing, error) {
	var l model.Listing
	err := row.Scan(
		&l.ID, &l.Slug, &l.RequestID, &l.Name, &l.Description, &l.CategoryID, &l.CategoryName,
		&l.StartsAt, &l.EndsAt, &l.VenueName, &l.VenueAddress, &l.City, &l.State, &l.Zip, &l.Country,
		&l.VenueType, &l.Capacity, &l.Price, &l.Currency, &l.IsFree, &l.AgeRestriction,
		&l.Accessibility, &l.Parking, &l.Food, &l.Alcohol, &l.Website, &l.OrganizerID, &l.Status,
		&l.PublishedAt, &l.TicketSeq, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *store) CountActiveTickets(ctx context.Context, listingID string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM tickets
		WHERE listing_id = $1 AND status IN ('ACTIVE', 'USED')
	`, listingID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return count, nil
}

const ticketColumns = `
	id, ticket_id, listing_id, buyer_user_id, buyer_name, buyer_email, buyer_phone,
	price, currency, status, is_used, used_at, cancelled_at, qr_payload, purchased_at`

func (s *store) CreateTicket(ctx context.Context, t *model.Ticket) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tickets (
			id, ticket_id, listing_id, buyer_user_id, buyer_name, buyer_email, buyer_phone,
			price, currency, status, is_used, used_at, cancelled_at, qr_payload, purchased_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		t.ID, t.TicketID, t.ListingID, t.BuyerUserID, t.BuyerName, t.BuyerEmail, t.BuyerPhone,
		t.Price, t.Currency, t.Status, t.IsUsed, t.UsedAt, t.CancelledAt, t.QRPayload, t.PurchasedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", mapPgError(err))
	}
	return nil
}

func (s *store) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return s.getTicket(ctx, `SELECT`+ticketColumns+` FROM tickets WHERE ticket_id = $1`, ticketID)
}

func (s *store) GetTicketForUpdate(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return s.getTicket(ctx, `SELECT`+ticketColumns+` FROM tickets WHERE ticket_id = $1 FOR UPDATE`, ticketID)
}

func (s *store) getTicket(ctx context.Context, query, ticketID string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.q.QueryRowContext(ctx, query, ticketID).Scan(
		&t.ID, &t.TicketID, &t.ListingID, &t.BuyerUserID, &t.BuyerName, &t.BuyerEmail, &t.BuyerPhone,
		&t.Price, &t.Currency, &t.Status, &t.IsUsed, &t.UsedAt, &t.CancelledAt, &t.QRPayload, &t.PurchasedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", mapPgError(err))
	}
	return &t, nil
}

func (s *store) UpdateTicketStatus(ctx context.Context, t *model.Ticket) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE tickets
		SET status = $1, is_used = $2, used_at = $3, cancelled_at = $4
		WHERE id = $5
	`, t.Status, t.IsUsed, t.UsedAt, t.CancelledAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", mapPgError(err))
	}
	return expectOne(res)
}

func (s *store) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.Name, u.Role, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", mapPgError(err))
	}
	return nil
}

func (s *store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `SELECT id, email, name, role, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (s *store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `SELECT id, email, name, role, password_hash, created_at FROM users WHERE lower(email) = lower($1)`, email)
}

func (s *store) getUser(ctx context.Context, query, arg string) (*model.User, error) {
	var u model.User
	err := s.q.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", mapPgError(err))
	}
	return &u, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
