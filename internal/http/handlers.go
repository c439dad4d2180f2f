package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gatepass/gatepass/internal/adapters/postgres"
	redisadapter "github.com/gatepass/gatepass/internal/adapters/redis"
	"github.com/gatepass/gatepass/internal/config"
	"github.com/gatepass/gatepass/internal/domain"
	"github.com/gatepass/gatepass/internal/gateway"
	"github.com/gatepass/gatepass/internal/observability"
	"github.com/gatepass/gatepass/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settler is the settlement entry point shared by the webhook and verify
// handlers. Both can race for the same reference; the pipeline is built for
// that.
type Settler interface {
	Settle(ctx context.Context, reference string, reservationIDs []uuid.UUID) (*settlement.Result, error)
}

type Handlers struct {
	cfg         *config.Config
	repo        *postgres.Repository
	settler     Settler
	gw          *gateway.Client
	verifyCache *redisadapter.VerifyCache
	validate    *validator.Validate
	logger      observability.Logger
}

func NewHandlers(cfg *config.Config, repo *postgres.Repository, settler Settler,
	gw *gateway.Client, verifyCache *redisadapter.VerifyCache, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:         cfg,
		repo:        repo,
		settler:     settler,
		gw:          gw,
		verifyCache: verifyCache,
		validate:    validator.New(),
		logger:      logger,
	}
}

type checkoutItem struct {
	TierID   string `json:"tier_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type checkoutRequest struct {
	EventID      string         `json:"event_id" validate:"required,uuid"`
	Items        []checkoutItem `json:"items" validate:"required,min=1,dive"`
	AddOns       map[string]int `json:"add_ons" validate:"omitempty,dive,gt=0"`
	DiscountCode string         `json:"discount_code"`
	Name         string         `json:"name" validate:"required"`
	Email        string         `json:"email" validate:"required,email"`
}

// Checkout creates pending reservations and pre-authorizes the payment. The
// split sent to the gateway comes from the same fee engine settlement uses,
// so the pre-authorized amounts and the eventual ledger always agree.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	eventID := uuid.MustParse(req.EventID)

	ev, err := h.repo.GetEvent(ctx, eventID)
	if err != nil {
		httpError(w, err, "event not found")
		return
	}
	org, err := h.repo.GetOrganizer(ctx, ev.OrganizerID)
	if err != nil {
		httpError(w, err, "organizer not found")
		return
	}

	var discount *domain.Discount
	if req.DiscountCode != "" {
		discount, err = h.repo.GetDiscountByCode(ctx, ev.ID, req.DiscountCode)
		if err != nil {
			httpError(w, err, "unknown discount code")
			return
		}
	}

	addons := make(map[uuid.UUID]int, len(req.AddOns))
	var addonPrices map[uuid.UUID]domain.AddOn
	if len(req.AddOns) > 0 {
		addonPrices, err = h.repo.GetAddOns(ctx, ev.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for raw, qty := range req.AddOns {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				http.Error(w, "invalid add-on id", http.StatusBadRequest)
				return
			}
			if _, ok := addonPrices[id]; !ok {
				http.Error(w, "unknown add-on", http.StatusBadRequest)
				return
			}
			addons[id] = qty
		}
	}

	rates := domain.ResolveRates(h.cfg.GlobalRates(), *ev, *org)
	reference := "GP-" + uuid.NewString()
	expiresAt := time.Now().Add(h.cfg.ReservationTTL)

	var (
		customerTotal = decimal.Zero
		platformFee   = decimal.Zero
		currency      string
		reservationIDs []string
	)

	for i, item := range req.Items {
		tier, err := h.repo.GetTier(ctx, uuid.MustParse(item.TierID))
		if err != nil {
			httpError(w, err, "tier not found")
			return
		}
		if tier.EventID != ev.ID {
			http.Error(w, "tier does not belong to event", http.StatusBadRequest)
			return
		}
		currency = tier.Currency

		res := domain.Reservation{
			ID:               uuid.New(),
			TierID:           tier.ID,
			EventID:          ev.ID,
			Quantity:         item.Quantity,
			BuyerName:        req.Name,
			BuyerEmail:       req.Email,
			PaymentReference: reference,
			ExpiresAt:        expiresAt,
		}

		// The discount and the add-on selection attach to the first line of
		// a mixed-tier order; counters increment once per reservation.
		ticketSub := tier.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		addonSub := decimal.Zero
		if i == 0 {
			if discount != nil {
				res.DiscountID = &discount.ID
				ticketSub = domain.DiscountedSubtotal(tier.Price, item.Quantity, discount)
			}
			if len(addons) > 0 {
				res.AddOns = addons
				for id, qty := range addons {
					addonSub = addonSub.Add(addonPrices[id].Price.Mul(decimal.NewFromInt(int64(qty))))
				}
			}
		}

		fees := domain.ComputeFees(ticketSub, addonSub, ev.FeeBearer, rates)
		customerTotal = customerTotal.Add(fees.CustomerTotal)
		platformFee = platformFee.Add(fees.PlatformFee)

		if err := h.repo.CreateReservation(ctx, res); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		reservationIDs = append(reservationIDs, res.ID.String())
	}

	auth, err := h.gw.InitializeTransaction(ctx, gateway.InitializeRequest{
		Email:             req.Email,
		Amount:            customerTotal,
		Currency:          currency,
		Reference:         reference,
		CallbackURL:       h.cfg.CallbackURL,
		Metadata:          gateway.Metadata{ReservationIDs: reservationIDs},
		Subaccount:        org.SubaccountCode,
		TransactionCharge: platformFee,
		Bearer:            ev.FeeBearer,
	})
	if err != nil {
		h.logger.WithField("reference", reference).WithError(err).Error("gateway initialization failed")
		http.Error(w, "payment initialization failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"reference":         reference,
		"authorization_url": auth.AuthorizationURL,
		"access_code":       auth.AccessCode,
		"amount":            customerTotal.String(),
		"currency":          currency,
		"expires_at":        expiresAt.Format(time.RFC3339),
	})
}

// Webhook receives gateway deliveries. The signature gates everything; the
// settlement itself runs detached from the request so a gateway-side timeout
// cannot leave it half done.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sig := r.Header.Get("X-Gateway-Signature")
	if !gateway.ValidSignature(h.cfg.GatewaySecretKey, body, sig) {
		observability.WebhookRejected.Inc()
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var evt struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if evt.Event != "charge.success" || evt.Data.Reference == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Minute)
	log := h.logger.WithField("reference", evt.Data.Reference)
	go func() {
		defer cancel()
		if _, err := h.settler.Settle(ctx, evt.Data.Reference, nil); err != nil {
			log.WithError(err).Error("webhook settlement failed")
		}
	}()

	w.WriteHeader(http.StatusOK)
}

// Verify is the buyer-facing path after the gateway redirect. It runs the
// identical settlement pipeline as the webhook.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		http.Error(w, "missing reference", http.StatusBadRequest)
		return
	}

	if h.verifyCache != nil {
		cached, err := h.verifyCache.Get(r.Context(), reference)
		if err == nil && cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(cached.Status)
			w.Write(cached.Result)
			return
		}
	}

	// Detached so a client disconnect mid-pipeline cannot abandon a
	// half-completed settlement.
	result, err := h.settler.Settle(context.WithoutCancel(r.Context()), reference, nil)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotSuccessful):
			http.Error(w, "payment not successful", http.StatusPaymentRequired)
		case errors.Is(err, domain.ErrReservationNotFound):
			http.Error(w, "reservation not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrPartialSettlement):
			http.Error(w, "settlement incomplete, retry shortly", http.StatusInternalServerError)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	type ticketResp struct {
		ID             uuid.UUID `json:"id"`
		OrderReference string    `json:"order_reference"`
	}
	type groupResp struct {
		Tier    string       `json:"tier"`
		Tickets []ticketResp `json:"tickets"`
	}
	groups := make([]groupResp, 0, len(result.Reservations))
	for _, sr := range result.Reservations {
		g := groupResp{Tier: sr.Tier.Name}
		for _, t := range sr.Tickets {
			g.Tickets = append(g.Tickets, ticketResp{ID: t.ID, OrderReference: t.OrderReference})
		}
		groups = append(groups, g)
	}

	data, _ := json.Marshal(map[string]interface{}{
		"reference":       reference,
		"status":          "settled",
		"already_settled": result.AlreadySettled,
		"groups":          groups,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)

	if h.verifyCache != nil {
		h.verifyCache.Set(r.Context(), reference, redisadapter.CachedResponse{
			Status: http.StatusOK,
			Result: data,
		})
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func httpError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, notFoundMsg, http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
