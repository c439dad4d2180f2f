package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gatepass/gatepass/internal/adapters/postgres"
	"github.com/gatepass/gatepass/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const schema = `
	CREATE TABLE organizers (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		platform_fee_percent NUMERIC,
		subaccount_code TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE events (
		id UUID PRIMARY KEY,
		organizer_id UUID NOT NULL REFERENCES organizers(id),
		name TEXT NOT NULL,
		venue TEXT NOT NULL DEFAULT '',
		starts_at TIMESTAMPTZ NOT NULL,
		fee_bearer TEXT NOT NULL CHECK (fee_bearer IN ('customer', 'organizer')),
		platform_fee_percent NUMERIC
	);
	CREATE TABLE ticket_tiers (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events(id),
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		total_quantity INT NOT NULL,
		quantity_sold INT NOT NULL DEFAULT 0,
		CHECK (quantity_sold <= total_quantity)
	);
	CREATE TABLE discounts (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events(id),
		code TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('percentage', 'fixed')),
		value NUMERIC NOT NULL,
		usage_count INT NOT NULL DEFAULT 0,
		max_uses INT,
		UNIQUE (event_id, code)
	);
	CREATE TABLE add_ons (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events(id),
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		quantity_sold INT NOT NULL DEFAULT 0
	);
	CREATE TABLE reservations (
		id UUID PRIMARY KEY,
		tier_id UUID NOT NULL REFERENCES ticket_tiers(id),
		event_id UUID NOT NULL REFERENCES events(id),
		discount_id UUID REFERENCES discounts(id),
		quantity INT NOT NULL,
		addons JSONB,
		buyer_name TEXT NOT NULL,
		buyer_email TEXT NOT NULL,
		user_id UUID,
		status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'expired', 'cancelled')),
		payment_reference TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		confirmed_at TIMESTAMPTZ
	);
	CREATE TABLE tickets (
		id UUID PRIMARY KEY,
		reservation_id UUID NOT NULL REFERENCES reservations(id),
		tier_id UUID NOT NULL REFERENCES ticket_tiers(id),
		seq INT NOT NULL,
		qr_payload TEXT NOT NULL,
		order_reference TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('valid', 'used', 'cancelled')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (reservation_id, seq)
	);
	CREATE TABLE transactions (
		id UUID PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		gross_amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		platform_rate NUMERIC NOT NULL,
		processor_rate NUMERIC NOT NULL,
		platform_fee NUMERIC NOT NULL,
		processor_fee NUMERIC NOT NULL,
		organizer_payout NUMERIC NOT NULL,
		reservation_ids UUID[] NOT NULL,
		settled_at TIMESTAMPTZ NOT NULL
	);
`

func setupRepo(t *testing.T) (*postgres.Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     "gatepass",
				"POSTGRES_PASSWORD": "gatepass",
				"POSTGRES_DB":       "gatepass",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	endpoint, err := pgContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, "postgres://gatepass:gatepass@"+endpoint+"/gatepass?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatal(err)
	}
	return postgres.NewRepository(pool), pool
}

type seeded struct {
	organizerID uuid.UUID
	eventID     uuid.UUID
	tierID      uuid.UUID
}

func seed(t *testing.T, pool *pgxpool.Pool, totalQuantity int) seeded {
	t.Helper()
	ctx := context.Background()
	s := seeded{organizerID: uuid.New(), eventID: uuid.New(), tierID: uuid.New()}

	_, err := pool.Exec(ctx, `INSERT INTO organizers (id, name, subaccount_code) VALUES ($1, 'Night Owl', 'SUB_x1')`, s.organizerID)
	if err != nil {
		t.Fatal(err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO events (id, organizer_id, name, venue, starts_at, fee_bearer)
		VALUES ($1, $2, 'Harbor Lights', 'Pier 9', now() + interval '2 days', 'customer')
	`, s.eventID, s.organizerID)
	if err != nil {
		t.Fatal(err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO ticket_tiers (id, event_id, name, price, currency, total_quantity)
		VALUES ($1, $2, 'General', 50, 'USD', $3)
	`, s.tierID, s.eventID, totalQuantity)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestReservation(s seeded, quantity int) domain.Reservation {
	return domain.Reservation{
		ID:               uuid.New(),
		TierID:           s.tierID,
		EventID:          s.eventID,
		Quantity:         quantity,
		BuyerName:        "Ada",
		BuyerEmail:       "ada@example.com",
		Status:           domain.ReservationPending,
		PaymentReference: "GP-" + uuid.NewString(),
		ExpiresAt:        time.Now().Add(30 * time.Minute),
	}
}

func testTickets(res domain.Reservation) []domain.Ticket {
	tickets := make([]domain.Ticket, 0, res.Quantity)
	for seq := 1; seq <= res.Quantity; seq++ {
		tickets = append(tickets, domain.Ticket{
			ID:             uuid.New(),
			ReservationID:  res.ID,
			TierID:         res.TierID,
			Seq:            seq,
			QRPayload:      uuid.NewString(),
			OrderReference: "GP-TEST" + uuid.NewString()[:6],
		})
	}
	return tickets
}

func TestRepository_ReservationRoundTrip(t *testing.T) {
	repo, pool := setupRepo(t)
	s := seed(t, pool, 100)
	ctx := context.Background()

	addonID := uuid.New()
	res := newTestReservation(s, 2)
	res.AddOns = map[uuid.UUID]int{addonID: 3}

	if err := repo.CreateReservation(ctx, res); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetReservation(ctx, res.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.ReservationPending || got.Quantity != 2 {
		t.Errorf("got %+v", got)
	}
	if got.AddOns[addonID] != 3 {
		t.Errorf("add-ons did not survive the round trip: %v", got.AddOns)
	}

	if _, err := repo.GetReservation(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing reservation: got %v, want ErrNotFound", err)
	}
}

func TestRepository_InsertTransaction_Idempotent(t *testing.T) {
	repo, pool := setupRepo(t)
	s := seed(t, pool, 100)
	ctx := context.Background()

	tx := domain.Transaction{
		ID:              uuid.New(),
		Reference:       "GP-ref-1",
		GrossAmount:     decimal.RequireFromString("105.98"),
		Currency:        "USD",
		Status:          "success",
		PlatformRate:    decimal.RequireFromString("0.04"),
		ProcessorRate:   decimal.RequireFromString("0.0198"),
		PlatformFee:     decimal.RequireFromString("4"),
		ProcessorFee:    decimal.RequireFromString("1.98"),
		OrganizerPayout: decimal.RequireFromString("100"),
		ReservationIDs:  []uuid.UUID{s.tierID},
		SettledAt:       time.Now().UTC(),
	}

	inserted, err := repo.InsertTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatal("first insert reported inserted=false")
	}

	dup := tx
	dup.ID = uuid.New()
	inserted, err = repo.InsertTransaction(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted {
		t.Error("duplicate reference reported inserted=true")
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM transactions WHERE reference = 'GP-ref-1'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("ledger rows = %d, want 1", count)
	}
}

func TestRepository_IssueTickets(t *testing.T) {
	repo, pool := setupRepo(t)
	s := seed(t, pool, 100)
	ctx := context.Background()

	res := newTestReservation(s, 2)
	if err := repo.CreateReservation(ctx, res); err != nil {
		t.Fatal(err)
	}

	if err := repo.IssueTickets(ctx, res, testTickets(res)); err != nil {
		t.Fatalf("issue: %v", err)
	}

	tickets, err := repo.GetTickets(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 2 || tickets[0].Seq != 1 || tickets[1].Seq != 2 {
		t.Fatalf("tickets = %+v", tickets)
	}

	tier, err := repo.GetTier(ctx, s.tierID)
	if err != nil {
		t.Fatal(err)
	}
	if tier.QuantitySold != 2 {
		t.Errorf("quantity_sold = %d, want 2", tier.QuantitySold)
	}

	got, err := repo.GetReservation(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ReservationConfirmed || got.ConfirmedAt == nil {
		t.Errorf("reservation not confirmed: %+v", got)
	}

	// A redelivered webhook tries again with fresh ticket rows; the existence
	// check rejects it before anything is written.
	err = repo.IssueTickets(ctx, res, testTickets(res))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("repeat issue: got %v, want ErrConflict", err)
	}
	tickets2, err := repo.GetTickets(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets2) != 2 || tickets2[0].ID != tickets[0].ID {
		t.Error("repeat issuance changed the ticket rows")
	}
	tier, _ = repo.GetTier(ctx, s.tierID)
	if tier.QuantitySold != 2 {
		t.Errorf("quantity_sold after repeat = %d, want 2", tier.QuantitySold)
	}
}

func TestRepository_IssueTickets_SoldOut(t *testing.T) {
	repo, pool := setupRepo(t)
	s := seed(t, pool, 3)
	ctx := context.Background()

	first := newTestReservation(s, 2)
	if err := repo.CreateReservation(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := repo.IssueTickets(ctx, first, testTickets(first)); err != nil {
		t.Fatal(err)
	}

	second := newTestReservation(s, 2)
	if err := repo.CreateReservation(ctx, second); err != nil {
		t.Fatal(err)
	}
	err := repo.IssueTickets(ctx, second, testTickets(second))
	if !errors.Is(err, domain.ErrSoldOut) {
		t.Fatalf("got %v, want ErrSoldOut", err)
	}

	// The whole transaction rolled back: no tickets, no confirmation.
	tickets, _ := repo.GetTickets(ctx, second.ID)
	if len(tickets) != 0 {
		t.Error("sold-out issuance left ticket rows behind")
	}
	got, _ := repo.GetReservation(ctx, second.ID)
	if got.Status != domain.ReservationPending {
		t.Errorf("sold-out reservation status = %s, want pending", got.Status)
	}
	tier, _ := repo.GetTier(ctx, s.tierID)
	if tier.QuantitySold != 2 {
		t.Errorf("quantity_sold = %d, want 2", tier.QuantitySold)
	}
}

func TestRepository_IssueTickets_UnknownAddOn(t *testing.T) {
	repo, pool := setupRepo(t)
	s := seed(t, pool, 100)
	ctx := context.Background()

	res := newTestReservation(s, 1)
	res.AddOns = map[uuid.UUID]int{uuid.New(): 1}
	if err := repo.CreateReservation(ctx, res); err != nil {
		t.Fatal(err)
	}

	err := repo.IssueTickets(ctx, res, testTickets(res))
	if !errors.Is(err, domain.ErrUnknownAddOn) {
		t.Fatalf("got %v, want ErrUnknownAddOn", err)
	}
	tickets, _ := repo.GetTickets(ctx, res.ID)
	if len(tickets) != 0 {
		t.Error("unknown add-on issuance left ticket rows behind")
	}
}

func TestRepository_ExpireReservations(t *testing.T) {
	repo, pool := setupRepo(t)
	s := seed(t, pool, 100)
	ctx := context.Background()

	stale := newTestReservation(s, 1)
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	if err := repo.CreateReservation(ctx, stale); err != nil {
		t.Fatal(err)
	}

	fresh := newTestReservation(s, 1)
	if err := repo.CreateReservation(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	confirmed := newTestReservation(s, 1)
	confirmed.ExpiresAt = time.Now().Add(-time.Minute)
	if err := repo.CreateReservation(ctx, confirmed); err != nil {
		t.Fatal(err)
	}
	if err := repo.IssueTickets(ctx, confirmed, testTickets(confirmed)); err != nil {
		t.Fatal(err)
	}

	expired, err := repo.ExpireReservations(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1 (only the stale pending row)", expired)
	}

	got, _ := repo.GetReservation(ctx, stale.ID)
	if got.Status != domain.ReservationExpired {
		t.Errorf("stale status = %s, want expired", got.Status)
	}
	got, _ = repo.GetReservation(ctx, fresh.ID)
	if got.Status != domain.ReservationPending {
		t.Errorf("fresh status = %s, want pending", got.Status)
	}
	got, _ = repo.GetReservation(ctx, confirmed.ID)
	if got.Status != domain.ReservationConfirmed {
		t.Errorf("confirmed status = %s, want confirmed", got.Status)
	}

	// Payment completed after the sweep: the expired row still settles.
	if err := repo.IssueTickets(ctx, stale, testTickets(stale)); err != nil {
		t.Fatalf("settle expired reservation: %v", err)
	}
	got, _ = repo.GetReservation(ctx, stale.ID)
	if got.Status != domain.ReservationConfirmed {
		t.Errorf("late settlement status = %s, want confirmed", got.Status)
	}
}
