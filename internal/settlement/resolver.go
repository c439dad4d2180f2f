package settlement

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gatepass/gatepass/internal/domain"
	"github.com/gatepass/gatepass/internal/gateway"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence surface the settlement pipeline needs. The
// postgres repository implements it; tests use in-memory fakes.
type Store interface {
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	GetTier(ctx context.Context, id uuid.UUID) (*domain.TicketTier, error)
	GetDiscount(ctx context.Context, id uuid.UUID) (*domain.Discount, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	GetOrganizer(ctx context.Context, id uuid.UUID) (*domain.Organizer, error)
	GetAddOns(ctx context.Context, eventID uuid.UUID) (map[uuid.UUID]domain.AddOn, error)
	InsertTransaction(ctx context.Context, t domain.Transaction) (bool, error)
	GetTickets(ctx context.Context, reservationID uuid.UUID) ([]domain.Ticket, error)
	IssueTickets(ctx context.Context, res domain.Reservation, tickets []domain.Ticket) error
}

// ResolvedReservation is a reservation with its full purchase context loaded
// and normalized: exactly one tier, one event, one organizer, an optional
// discount, and the event's add-on price list.
type ResolvedReservation struct {
	Reservation domain.Reservation
	Tier        domain.TicketTier
	Discount    *domain.Discount
	Event       domain.Event
	Organizer   domain.Organizer
	AddOnPrices map[uuid.UUID]domain.AddOn
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve maps a payment reference to its reservations. Resolution order:
// explicit ids from the caller, then ids recovered from gateway metadata
// (reservation_ids, falling back to the older bookingIds field), then the
// reference itself — legacy single-reservation checkouts used the
// reservation id as the gateway reference.
func (r *Resolver) Resolve(ctx context.Context, reference string, explicitIDs []uuid.UUID, meta gateway.Metadata) ([]ResolvedReservation, error) {
	ids := explicitIDs
	if len(ids) == 0 {
		ids = parseIDs(meta.ReservationIDs)
	}
	if len(ids) == 0 {
		ids = parseIDs(meta.BookingIDs)
	}
	if len(ids) == 0 {
		if id, err := uuid.Parse(reference); err == nil {
			ids = []uuid.UUID{id}
		}
	}

	// Events and organizers are shared across a multi-tier order; load each
	// once per resolution call.
	events := make(map[uuid.UUID]*domain.Event)
	organizers := make(map[uuid.UUID]*domain.Organizer)
	addons := make(map[uuid.UUID]map[uuid.UUID]domain.AddOn)

	var resolved []ResolvedReservation
	for _, id := range ids {
		res, err := r.store.GetReservation(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "load reservation %s", id)
		}

		rr := ResolvedReservation{Reservation: *res}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			tier, err := r.store.GetTier(gctx, res.TierID)
			if err != nil {
				return errors.Wrapf(err, "load tier %s", res.TierID)
			}
			rr.Tier = *tier
			return nil
		})
		if res.DiscountID != nil {
			discountID := *res.DiscountID
			g.Go(func() error {
				d, err := r.store.GetDiscount(gctx, discountID)
				if err != nil {
					return errors.Wrapf(err, "load discount %s", discountID)
				}
				rr.Discount = d
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		ev, ok := events[res.EventID]
		if !ok {
			ev, err = r.store.GetEvent(ctx, res.EventID)
			if err != nil {
				return nil, errors.Wrapf(err, "load event %s", res.EventID)
			}
			events[res.EventID] = ev
		}
		rr.Event = *ev

		org, ok := organizers[ev.OrganizerID]
		if !ok {
			org, err = r.store.GetOrganizer(ctx, ev.OrganizerID)
			if err != nil {
				return nil, errors.Wrapf(err, "load organizer %s", ev.OrganizerID)
			}
			organizers[ev.OrganizerID] = org
		}
		rr.Organizer = *org

		prices, ok := addons[res.EventID]
		if !ok {
			prices, err = r.store.GetAddOns(ctx, res.EventID)
			if err != nil {
				return nil, errors.Wrapf(err, "load add-ons for event %s", res.EventID)
			}
			addons[res.EventID] = prices
		}
		rr.AddOnPrices = prices

		resolved = append(resolved, rr)
	}

	if len(resolved) == 0 {
		return nil, errors.Wrapf(domain.ErrReservationNotFound, "reference %s", reference)
	}
	return resolved, nil
}

func parseIDs(raw []string) []uuid.UUID {
	var ids []uuid.UUID
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
