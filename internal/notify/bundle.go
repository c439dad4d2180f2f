package notify

import (
	"time"

	"github.com/gatepass/gatepass/internal/domain"
	"github.com/google/uuid"
)

// Bundle is the fully-resolved handoff to the notification sink: everything
// needed to render and deliver tickets, grouped by tier for mixed-tier
// orders. The core guarantees the data is complete and correct here; the
// sink owns rendering and delivery.
type Bundle struct {
	Reference     string      `json:"reference"`
	EventName     string      `json:"event_name"`
	EventVenue    string      `json:"event_venue"`
	EventStartsAt time.Time   `json:"event_starts_at"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Groups        []TierGroup `json:"groups"`
}

type TierGroup struct {
	TierName string       `json:"tier_name"`
	Currency string       `json:"currency"`
	Tickets  []TicketInfo `json:"tickets"`
}

type TicketInfo struct {
	ID             uuid.UUID `json:"id"`
	OrderReference string    `json:"order_reference"`
	QRPayload      string    `json:"qr_payload"`
}

func NewBundle(reference string, ev domain.Event, buyerName, buyerEmail string) *Bundle {
	return &Bundle{
		Reference:     reference,
		EventName:     ev.Name,
		EventVenue:    ev.Venue,
		EventStartsAt: ev.StartsAt,
		CustomerName:  buyerName,
		CustomerEmail: buyerEmail,
	}
}

// Add appends tickets under their tier, merging with an existing group when
// two reservations share a tier.
func (b *Bundle) Add(tier domain.TicketTier, tickets []domain.Ticket) {
	infos := make([]TicketInfo, 0, len(tickets))
	for _, t := range tickets {
		infos = append(infos, TicketInfo{ID: t.ID, OrderReference: t.OrderReference, QRPayload: t.QRPayload})
	}
	for i := range b.Groups {
		if b.Groups[i].TierName == tier.Name {
			b.Groups[i].Tickets = append(b.Groups[i].Tickets, infos...)
			return
		}
	}
	b.Groups = append(b.Groups, TierGroup{TierName: tier.Name, Currency: tier.Currency, Tickets: infos})
}
