package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

type FeeBearer string

const (
	FeeBearerCustomer  FeeBearer = "customer"
	FeeBearerOrganizer FeeBearer = "organizer"
)

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// Reservation is a prospective purchase of one ticket tier. It is created
// pending at checkout and transitions to confirmed at most once, by
// settlement. AddOns maps add-on id to purchased quantity.
type Reservation struct {
	ID               uuid.UUID
	TierID           uuid.UUID
	EventID          uuid.UUID
	DiscountID       *uuid.UUID
	Quantity         int
	AddOns           map[uuid.UUID]int
	BuyerName        string
	BuyerEmail       string
	UserID           *uuid.UUID
	Status           ReservationStatus
	PaymentReference string
	ExpiresAt        time.Time
	CreatedAt        time.Time
	ConfirmedAt      *time.Time
}

type TicketTier struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	Name          string
	Price         decimal.Decimal
	Currency      string
	TotalQuantity int
	QuantitySold  int
}

type Discount struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	Code       string
	Kind       DiscountKind
	Value      decimal.Decimal
	UsageCount int
	MaxUses    *int
}

type AddOn struct {
	ID           uuid.UUID
	EventID      uuid.UUID
	Name         string
	Price        decimal.Decimal
	QuantitySold int
}

type Event struct {
	ID          uuid.UUID
	OrganizerID uuid.UUID
	Name        string
	Venue       string
	StartsAt    time.Time
	FeeBearer   FeeBearer
	// PlatformFeePercent overrides the global platform rate when set.
	PlatformFeePercent *decimal.Decimal
}

type Organizer struct {
	ID                 uuid.UUID
	Name               string
	PlatformFeePercent *decimal.Decimal
	// SubaccountCode routes the organizer's share of a split payment at the
	// gateway.
	SubaccountCode string
}

// Transaction is the ledger record for one gateway reference. The rates and
// fee amounts are the ones in effect at settlement time and are never
// recomputed after the fact.
type Transaction struct {
	ID              uuid.UUID
	Reference       string
	GrossAmount     decimal.Decimal
	Currency        string
	Status          string
	PlatformRate    decimal.Decimal
	ProcessorRate   decimal.Decimal
	PlatformFee     decimal.Decimal
	ProcessorFee    decimal.Decimal
	OrganizerPayout decimal.Decimal
	ReservationIDs  []uuid.UUID
	SettledAt       time.Time
}

// Ticket is one paid unit. Seq is 1..Reservation.Quantity and is unique per
// reservation, which is what makes repeated issuance attempts collide
// instead of duplicating.
type Ticket struct {
	ID             uuid.UUID
	ReservationID  uuid.UUID
	TierID         uuid.UUID
	Seq            int
	QRPayload      string
	OrderReference string
	Status         TicketStatus
	CreatedAt      time.Time
}
