package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gatepass/gatepass/internal/domain"
	"github.com/gatepass/gatepass/internal/gateway"
	"github.com/gatepass/gatepass/internal/notify"
	"github.com/gatepass/gatepass/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// GatewayClient is the verify side of the payment gateway.
type GatewayClient interface {
	VerifyTransaction(ctx context.Context, reference string) (*gateway.VerifyData, error)
}

// Locker is the optional advisory lock around one reference's settlement.
type Locker interface {
	SetSettlementLock(ctx context.Context, reference string, ttl time.Duration) (bool, error)
	ReleaseSettlementLock(ctx context.Context, reference string) error
}

// AnalyticsSink receives attribution metadata after settlement. Best effort.
type AnalyticsSink interface {
	Record(ctx context.Context, reference string, attribution map[string]string) error
}

// AuditTrail records the reproducible financial record of one settlement:
// the rates applied and the resulting fee amounts, per reservation.
type AuditTrail interface {
	RecordSettlement(ctx context.Context, rec AuditRecord) error
}

type AuditRecord struct {
	Reference       string
	Currency        string
	PlatformRate    decimal.Decimal
	ProcessorRate   decimal.Decimal
	PlatformFee     decimal.Decimal
	ProcessorFee    decimal.Decimal
	OrganizerPayout decimal.Decimal
	Reservations    []AuditReservation
	SettledAt       time.Time
}

type AuditReservation struct {
	ID             uuid.UUID
	TicketSubtotal decimal.Decimal
	AddOnSubtotal  decimal.Decimal
	PlatformFee    decimal.Decimal
	ProcessorFee   decimal.Decimal
}

// SettledReservation is one reservation's outcome within a settlement.
type SettledReservation struct {
	ResolvedReservation
	Fees          domain.FeeBreakdown
	Tickets       []domain.Ticket
	AlreadyIssued bool
}

type FailedReservation struct {
	ID  uuid.UUID
	Err error
}

type Result struct {
	Transaction    domain.Transaction
	Reservations   []SettledReservation
	Failed         []FailedReservation
	AlreadySettled bool
}

// Orchestrator drives one settlement per gateway confirmation: verify,
// resolve, compute, ledger write, idempotent ticket issuance, then the
// best-effort handoffs. Webhook redelivery and the buyer's own verify call
// both land here, which is why every write is guarded.
type Orchestrator struct {
	store     Store
	gw        GatewayClient
	resolver  *Resolver
	defaults  domain.GlobalRates
	notifier  notify.Sink
	analytics AnalyticsSink
	audit     AuditTrail
	locker    Locker
	logger    observability.Logger
	lockTTL   time.Duration
}

func NewOrchestrator(store Store, gw GatewayClient, defaults domain.GlobalRates,
	notifier notify.Sink, analytics AnalyticsSink, audit AuditTrail, locker Locker,
	logger observability.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		gw:        gw,
		resolver:  NewResolver(store),
		defaults:  defaults,
		notifier:  notifier,
		analytics: analytics,
		audit:     audit,
		locker:    locker,
		logger:    logger,
		lockTTL:   2 * time.Minute,
	}
}

type computedReservation struct {
	rr             ResolvedReservation
	rates          domain.Rates
	ticketSubtotal decimal.Decimal
	addonSubtotal  decimal.Decimal
	fees           domain.FeeBreakdown
}

// Settle converts one confirmed payment into ledger entries and issued
// tickets. Safe to invoke any number of times for the same reference.
func (o *Orchestrator) Settle(ctx context.Context, reference string, explicitIDs []uuid.UUID) (result *Result, err error) {
	start := time.Now()
	tracer := otel.Tracer("settlement")
	ctx, span := tracer.Start(ctx, "settlement.settle")
	span.SetAttributes(attribute.String("payment.reference", reference))
	defer span.End()
	defer func() {
		observability.SettlementDuration.Observe(time.Since(start).Seconds())
		observability.SettlementsTotal.WithLabelValues(resultLabel(err)).Inc()
	}()

	log := o.logger.WithField("reference", reference)

	// Steps 1-2 perform no writes and are fully retryable.
	verified, err := o.gw.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, errors.Wrap(err, "verify transaction")
	}
	if !verified.Succeeded() {
		return nil, errors.Wrapf(domain.ErrPaymentNotSuccessful, "gateway status %q", verified.Status)
	}

	if o.locker != nil {
		ok, lockErr := o.locker.SetSettlementLock(ctx, reference, o.lockTTL)
		switch {
		case lockErr != nil:
			log.WithError(lockErr).Warn("settlement lock unavailable, relying on store constraints")
		case ok:
			defer o.locker.ReleaseSettlementLock(context.WithoutCancel(ctx), reference)
		default:
			// Another invocation is mid-flight. Continuing is safe: the
			// ledger and ticket constraints make the duplicate a no-op.
			log.Debug("concurrent settlement in progress")
		}
	}

	resolved, err := o.resolver.Resolve(ctx, reference, explicitIDs, verified.Metadata)
	if err != nil {
		return nil, err
	}

	computed, totals, err := o.compute(resolved)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(resolved))
	for i, rr := range resolved {
		ids[i] = rr.Reservation.ID
	}

	ledger := domain.Transaction{
		ID:              uuid.New(),
		Reference:       reference,
		GrossAmount:     decimal.New(verified.Amount, -2),
		Currency:        verified.Currency,
		Status:          verified.Status,
		PlatformRate:    computed[0].rates.Platform,
		ProcessorRate:   computed[0].rates.Processor,
		PlatformFee:     totals.PlatformFee,
		ProcessorFee:    totals.ProcessorFee,
		OrganizerPayout: totals.OrganizerPayout,
		ReservationIDs:  ids,
		SettledAt:       time.Now().UTC(),
	}

	inserted, err := o.store.InsertTransaction(ctx, ledger)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return nil, errors.Wrap(err, "write transaction ledger")
	}

	result = &Result{Transaction: ledger, AlreadySettled: !inserted}
	if !inserted {
		log.Info("transaction ledger row already present, resuming ticket issuance")
	}

	// Each reservation is settled independently: a failure on one must not
	// block or duplicate another's tickets. Failed ones stay pending with no
	// tickets, so the next invocation picks them up.
	for _, c := range computed {
		tickets, alreadyIssued, issueErr := o.issueOnce(ctx, c.rr.Reservation)
		if issueErr != nil {
			log.WithField("reservation_id", c.rr.Reservation.ID.String()).WithError(issueErr).Error("reservation settlement failed")
			result.Failed = append(result.Failed, FailedReservation{ID: c.rr.Reservation.ID, Err: issueErr})
			continue
		}
		result.Reservations = append(result.Reservations, SettledReservation{
			ResolvedReservation: c.rr,
			Fees:                c.fees,
			Tickets:             tickets,
			AlreadyIssued:       alreadyIssued,
		})
	}

	if inserted && o.audit != nil {
		if auditErr := o.audit.RecordSettlement(ctx, auditRecord(ledger, computed)); auditErr != nil {
			log.WithError(auditErr).Warn("audit trail write failed")
		}
	}

	o.handoff(ctx, log, reference, verified, result)

	if len(result.Failed) > 0 {
		return result, errors.Wrapf(domain.ErrPartialSettlement,
			"%d of %d reservations failed", len(result.Failed), len(computed))
	}
	return result, nil
}

func (o *Orchestrator) compute(resolved []ResolvedReservation) ([]computedReservation, domain.FeeBreakdown, error) {
	var totals domain.FeeBreakdown
	computed := make([]computedReservation, 0, len(resolved))

	for _, rr := range resolved {
		rates := domain.ResolveRates(o.defaults, rr.Event, rr.Organizer)
		ticketSub := domain.DiscountedSubtotal(rr.Tier.Price, rr.Reservation.Quantity, rr.Discount)

		addonSub := decimal.Zero
		for addonID, qty := range rr.Reservation.AddOns {
			addon, ok := rr.AddOnPrices[addonID]
			if !ok {
				return nil, totals, errors.Wrapf(domain.ErrUnknownAddOn,
					"add-on %s not offered by event %s", addonID, rr.Event.ID)
			}
			addonSub = addonSub.Add(addon.Price.Mul(decimal.NewFromInt(int64(qty))))
		}

		fees := domain.ComputeFees(ticketSub, addonSub, rr.Event.FeeBearer, rates)
		totals.PlatformFee = totals.PlatformFee.Add(fees.PlatformFee)
		totals.ProcessorFee = totals.ProcessorFee.Add(fees.ProcessorFee)
		totals.ClientFees = totals.ClientFees.Add(fees.ClientFees)
		totals.CustomerTotal = totals.CustomerTotal.Add(fees.CustomerTotal)
		totals.OrganizerPayout = totals.OrganizerPayout.Add(fees.OrganizerPayout)

		computed = append(computed, computedReservation{
			rr:             rr,
			rates:          rates,
			ticketSubtotal: ticketSub,
			addonSubtotal:  addonSub,
			fees:           fees,
		})
	}
	return computed, totals, nil
}

// issueOnce creates a reservation's tickets exactly once. The existence
// check and insert run in one store-side critical section; losing a race
// just means re-reading the winner's rows.
func (o *Orchestrator) issueOnce(ctx context.Context, res domain.Reservation) ([]domain.Ticket, bool, error) {
	existing, err := o.store.GetTickets(ctx, res.ID)
	if err != nil {
		return nil, false, errors.Wrap(err, "check existing tickets")
	}
	if len(existing) > 0 {
		return existing, true, nil
	}

	tickets, err := newTickets(res)
	if err != nil {
		return nil, false, err
	}

	err = o.store.IssueTickets(ctx, res, tickets)
	if errors.Is(err, domain.ErrConflict) {
		winner, readErr := o.store.GetTickets(ctx, res.ID)
		if readErr != nil {
			return nil, false, errors.Wrap(readErr, "reload tickets after conflict")
		}
		return winner, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	observability.TicketsIssued.Add(float64(len(tickets)))
	return tickets, false, nil
}

func newTickets(res domain.Reservation) ([]domain.Ticket, error) {
	tickets := make([]domain.Ticket, 0, res.Quantity)
	for seq := 1; seq <= res.Quantity; seq++ {
		payload, err := randomHex(32)
		if err != nil {
			return nil, errors.Wrap(err, "generate qr payload")
		}
		ref, err := randomHex(6)
		if err != nil {
			return nil, errors.Wrap(err, "generate order reference")
		}
		tickets = append(tickets, domain.Ticket{
			ID:             uuid.New(),
			ReservationID:  res.ID,
			TierID:         res.TierID,
			Seq:            seq,
			QRPayload:      payload,
			OrderReference: fmt.Sprintf("GP-%s", strings.ToUpper(ref)),
			Status:         domain.TicketValid,
			CreatedAt:      time.Now().UTC(),
		})
	}
	return tickets, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// handoff runs the post-commit, best-effort steps. Nothing here may fail
// the settlement.
func (o *Orchestrator) handoff(ctx context.Context, log observability.Logger, reference string, verified *gateway.VerifyData, result *Result) {
	if o.notifier != nil && len(result.Reservations) > 0 {
		first := result.Reservations[0]
		bundle := notify.NewBundle(reference, first.Event, first.Reservation.BuyerName, first.Reservation.BuyerEmail)
		for _, sr := range result.Reservations {
			bundle.Add(sr.Tier, sr.Tickets)
		}
		if err := o.notifier.Deliver(ctx, *bundle); err != nil {
			observability.NotifyFailures.Inc()
			log.WithError(err).Error("notification handoff failed")
		}
	}

	if o.analytics != nil && len(verified.Metadata.Attribution) > 0 {
		if err := o.analytics.Record(ctx, reference, verified.Metadata.Attribution); err != nil {
			log.WithError(err).Warn("attribution handoff failed")
		}
	}
}

func auditRecord(ledger domain.Transaction, computed []computedReservation) AuditRecord {
	rec := AuditRecord{
		Reference:       ledger.Reference,
		Currency:        ledger.Currency,
		PlatformRate:    ledger.PlatformRate,
		ProcessorRate:   ledger.ProcessorRate,
		PlatformFee:     ledger.PlatformFee,
		ProcessorFee:    ledger.ProcessorFee,
		OrganizerPayout: ledger.OrganizerPayout,
		SettledAt:       ledger.SettledAt,
	}
	for _, c := range computed {
		rec.Reservations = append(rec.Reservations, AuditReservation{
			ID:             c.rr.Reservation.ID,
			TicketSubtotal: c.ticketSubtotal,
			AddOnSubtotal:  c.addonSubtotal,
			PlatformFee:    c.fees.PlatformFee,
			ProcessorFee:   c.fees.ProcessorFee,
		})
	}
	return rec
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrPaymentNotSuccessful):
		return "payment_failed"
	case errors.Is(err, domain.ErrReservationNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPartialSettlement):
		return "partial"
	default:
		return "error"
	}
}
