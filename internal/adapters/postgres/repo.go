package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gatepass/gatepass/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}

	return mapPgError(tx.Commit(ctx))
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailureCode:
			return domain.ErrSerializationFailure
		case UniqueViolationCode:
			return domain.ErrConflict
		}
	}
	return err
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	var (
		res    domain.Reservation
		addons []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, tier_id, event_id, discount_id, quantity, addons,
		       buyer_name, buyer_email, user_id, status, payment_reference,
		       expires_at, created_at, confirmed_at
		FROM reservations WHERE id = $1
	`, id).Scan(&res.ID, &res.TierID, &res.EventID, &res.DiscountID, &res.Quantity,
		&addons, &res.BuyerName, &res.BuyerEmail, &res.UserID, &res.Status,
		&res.PaymentReference, &res.ExpiresAt, &res.CreatedAt, &res.ConfirmedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(addons) > 0 {
		if err := json.Unmarshal(addons, &res.AddOns); err != nil {
			return nil, errors.Wrap(err, "decode reservation add-ons")
		}
	}
	return &res, nil
}

func (r *Repository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	addons, err := json.Marshal(res.AddOns)
	if err != nil {
		return errors.Wrap(err, "encode reservation add-ons")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO reservations (id, tier_id, event_id, discount_id, quantity, addons,
		                          buyer_name, buyer_email, user_id, status,
		                          payment_reference, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10, $11, now())
	`, res.ID, res.TierID, res.EventID, res.DiscountID, res.Quantity, addons,
		res.BuyerName, res.BuyerEmail, res.UserID, res.PaymentReference, res.ExpiresAt)
	return mapPgError(err)
}

func (r *Repository) GetTier(ctx context.Context, id uuid.UUID) (*domain.TicketTier, error) {
	var t domain.TicketTier
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, name, price, currency, total_quantity, quantity_sold
		FROM ticket_tiers WHERE id = $1
	`, id).Scan(&t.ID, &t.EventID, &t.Name, &t.Price, &t.Currency, &t.TotalQuantity, &t.QuantitySold)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) GetDiscount(ctx context.Context, id uuid.UUID) (*domain.Discount, error) {
	var d domain.Discount
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, code, kind, value, usage_count, max_uses
		FROM discounts WHERE id = $1
	`, id).Scan(&d.ID, &d.EventID, &d.Code, &d.Kind, &d.Value, &d.UsageCount, &d.MaxUses)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) GetDiscountByCode(ctx context.Context, eventID uuid.UUID, code string) (*domain.Discount, error) {
	var d domain.Discount
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, code, kind, value, usage_count, max_uses
		FROM discounts WHERE event_id = $1 AND code = $2
	`, eventID, code).Scan(&d.ID, &d.EventID, &d.Code, &d.Kind, &d.Value, &d.UsageCount, &d.MaxUses)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var e domain.Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, organizer_id, name, venue, starts_at, fee_bearer, platform_fee_percent
		FROM events WHERE id = $1
	`, id).Scan(&e.ID, &e.OrganizerID, &e.Name, &e.Venue, &e.StartsAt, &e.FeeBearer, &e.PlatformFeePercent)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) GetOrganizer(ctx context.Context, id uuid.UUID) (*domain.Organizer, error) {
	var o domain.Organizer
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, platform_fee_percent, subaccount_code
		FROM organizers WHERE id = $1
	`, id).Scan(&o.ID, &o.Name, &o.PlatformFeePercent, &o.SubaccountCode)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) GetAddOns(ctx context.Context, eventID uuid.UUID) (map[uuid.UUID]domain.AddOn, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, name, price, quantity_sold
		FROM add_ons WHERE event_id = $1
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addons := make(map[uuid.UUID]domain.AddOn)
	for rows.Next() {
		var a domain.AddOn
		if err := rows.Scan(&a.ID, &a.EventID, &a.Name, &a.Price, &a.QuantitySold); err != nil {
			return nil, err
		}
		addons[a.ID] = a
	}
	return addons, rows.Err()
}

// ExpireReservations sweeps pending reservations past their TTL. Confirmed
// rows are never touched; a payment that lands after the sweep still settles.
func (r *Repository) ExpireReservations(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE reservations SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
