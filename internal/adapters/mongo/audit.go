package mongo

import (
	"context"
	"time"

	"github.com/gatepass/gatepass/internal/observability"
	"github.com/gatepass/gatepass/internal/settlement"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditTrail persists the financial record of each settlement: the rates in
// effect and the fee amounts they produced. Amounts are stored as strings to
// keep them exact.
type AuditTrail struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditTrail(db *mongo.Database, logger observability.Logger) *AuditTrail {
	return &AuditTrail{
		coll:   db.Collection("settlement_audit"),
		logger: logger,
	}
}

type settlementDoc struct {
	ID              uuid.UUID        `bson:"_id"`
	Reference       string           `bson:"reference"`
	Currency        string           `bson:"currency"`
	PlatformRate    string           `bson:"platform_rate"`
	ProcessorRate   string           `bson:"processor_rate"`
	PlatformFee     string           `bson:"platform_fee"`
	ProcessorFee    string           `bson:"processor_fee"`
	OrganizerPayout string           `bson:"organizer_payout"`
	Reservations    []reservationDoc `bson:"reservations"`
	SettledAt       time.Time        `bson:"settled_at"`
}

type reservationDoc struct {
	ReservationID  uuid.UUID `bson:"reservation_id"`
	TicketSubtotal string    `bson:"ticket_subtotal"`
	AddOnSubtotal  string    `bson:"addon_subtotal"`
	PlatformFee    string    `bson:"platform_fee"`
	ProcessorFee   string    `bson:"processor_fee"`
}

func (a *AuditTrail) RecordSettlement(ctx context.Context, rec settlement.AuditRecord) error {
	doc := settlementDoc{
		ID:              uuid.New(),
		Reference:       rec.Reference,
		Currency:        rec.Currency,
		PlatformRate:    rec.PlatformRate.String(),
		ProcessorRate:   rec.ProcessorRate.String(),
		PlatformFee:     rec.PlatformFee.String(),
		ProcessorFee:    rec.ProcessorFee.String(),
		OrganizerPayout: rec.OrganizerPayout.String(),
		SettledAt:       rec.SettledAt,
	}
	for _, r := range rec.Reservations {
		doc.Reservations = append(doc.Reservations, reservationDoc{
			ReservationID:  r.ID,
			TicketSubtotal: r.TicketSubtotal.String(),
			AddOnSubtotal:  r.AddOnSubtotal.String(),
			PlatformFee:    r.PlatformFee.String(),
			ProcessorFee:   r.ProcessorFee.String(),
		})
	}

	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		a.logger.Error("failed to insert settlement audit record", err)
		return err
	}
	return nil
}
