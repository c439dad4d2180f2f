package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gatepass/gatepass/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertTransaction writes the ledger row for one gateway reference. The
// unique constraint on reference makes the first writer win; a duplicate
// write reports inserted=false and is not an error, because ticket issuance
// idempotency is tracked independently per reservation.
func (r *Repository) InsertTransaction(ctx context.Context, t domain.Transaction) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO transactions (id, reference, gross_amount, currency, status,
		                          platform_rate, processor_rate, platform_fee,
		                          processor_fee, organizer_payout, reservation_ids, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (reference) DO NOTHING
	`, t.ID, t.Reference, t.GrossAmount, t.Currency, t.Status,
		t.PlatformRate, t.ProcessorRate, t.PlatformFee,
		t.ProcessorFee, t.OrganizerPayout, t.ReservationIDs, t.SettledAt)
	if err != nil {
		return false, mapPgError(err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *Repository) GetTickets(ctx context.Context, reservationID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, reservation_id, tier_id, seq, qr_payload, order_reference, status, created_at
		FROM tickets WHERE reservation_id = $1 ORDER BY seq
	`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.ReservationID, &t.TierID, &t.Seq,
			&t.QRPayload, &t.OrderReference, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// IssueTickets runs the per-reservation critical section: existence check,
// ticket inserts, atomic counter increments and the pending->confirmed
// transition, all in one SERIALIZABLE transaction. A concurrent writer that
// got there first surfaces as domain.ErrConflict, either from the existence
// check or from the (reservation_id, seq) unique constraint; the caller
// re-reads the existing tickets in that case.
func (r *Repository) IssueTickets(ctx context.Context, res domain.Reservation, tickets []domain.Ticket) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var existing int
		err := tx.QueryRow(ctx, `
			SELECT count(*) FROM tickets WHERE reservation_id = $1
		`, res.ID).Scan(&existing)
		if err != nil {
			return err
		}
		if existing > 0 {
			return domain.ErrConflict
		}

		batch := &pgx.Batch{}
		for _, t := range tickets {
			batch.Queue(`
				INSERT INTO tickets (id, reservation_id, tier_id, seq, qr_payload,
				                     order_reference, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, 'valid', now())
			`, t.ID, t.ReservationID, t.TierID, t.Seq, t.QRPayload, t.OrderReference)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		// Inventory moves as a single database-side increment with a
		// capacity predicate; there is no read-modify-write path to race.
		result, err := tx.Exec(ctx, `
			UPDATE ticket_tiers
			SET quantity_sold = quantity_sold + $2
			WHERE id = $1 AND quantity_sold + $2 <= total_quantity
		`, res.TierID, res.Quantity)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrSoldOut
		}

		for addonID, qty := range res.AddOns {
			result, err := tx.Exec(ctx, `
				UPDATE add_ons SET quantity_sold = quantity_sold + $2 WHERE id = $1
			`, addonID, qty)
			if err != nil {
				return err
			}
			if result.RowsAffected() == 0 {
				return errors.Wrapf(domain.ErrUnknownAddOn, "add-on %s", addonID)
			}
		}

		if res.DiscountID != nil {
			_, err := tx.Exec(ctx, `
				UPDATE discounts SET usage_count = usage_count + 1 WHERE id = $1
			`, *res.DiscountID)
			if err != nil {
				return err
			}
		}

		// A reservation the sweeper expired can still confirm: the payment
		// is the source of truth once the gateway reports success.
		result, err = tx.Exec(ctx, `
			UPDATE reservations SET status = 'confirmed', confirmed_at = now()
			WHERE id = $1 AND status IN ('pending', 'expired')
		`, res.ID)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return errors.Wrapf(domain.ErrConflict, "reservation %s not confirmable", res.ID)
		}
		return nil
	})
}
