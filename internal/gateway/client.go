package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gatepass/gatepass/internal/domain"
	"github.com/shopspring/decimal"
)

// Client is a thin typed client for the payment gateway's REST API. Amounts
// cross into gateway minor units here and nowhere else.
type Client struct {
	baseURL string
	secret  string
	httpc   *http.Client
}

func NewClient(secret, baseURL string) (*Client, error) {
	if secret == "" {
		return nil, errors.Wrap(domain.ErrConfiguration, "gateway secret key")
	}
	if baseURL == "" {
		return nil, errors.Wrap(domain.ErrConfiguration, "gateway base url")
	}
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Metadata is the free-form payload attached to a gateway transaction at
// initialization and echoed back on verify.
type Metadata struct {
	ReservationIDs []string `json:"reservation_ids,omitempty"`
	// BookingIDs is the field name older checkout integrations wrote.
	BookingIDs  []string          `json:"bookingIds,omitempty"`
	Attribution map[string]string `json:"attribution,omitempty"`
}

// VerifyData is the gateway's authoritative record of a transaction. Amount
// is in minor units.
type VerifyData struct {
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Channel   string    `json:"channel"`
	PaidAt    time.Time `json:"paid_at"`
	Metadata  Metadata  `json:"metadata"`
}

func (d *VerifyData) Succeeded() bool {
	return d.Status == "success"
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// VerifyTransaction asks the gateway whether a reference was actually paid.
// This response, never the client's claim, is the source of truth.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	var data VerifyData
	if err := c.do(req, &data); err != nil {
		return nil, errors.Wrapf(err, "verify %s", reference)
	}
	return &data, nil
}

// InitializeRequest describes a checkout to pre-authorize. Amount and
// TransactionCharge are decimal currency units; TransactionCharge is the
// platform-fee portion the gateway routes to the platform instead of the
// organizer's subaccount.
type InitializeRequest struct {
	Email             string
	Amount            decimal.Decimal
	Currency          string
	Reference         string
	CallbackURL       string
	Metadata          Metadata
	Subaccount        string
	TransactionCharge decimal.Decimal
	Bearer            domain.FeeBearer
}

type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

func (c *Client) InitializeTransaction(ctx context.Context, init InitializeRequest) (*Authorization, error) {
	payload := struct {
		Email             string   `json:"email"`
		Amount            int64    `json:"amount"`
		Currency          string   `json:"currency"`
		Reference         string   `json:"reference"`
		CallbackURL       string   `json:"callback_url"`
		Metadata          Metadata `json:"metadata"`
		Subaccount        string   `json:"subaccount,omitempty"`
		TransactionCharge int64    `json:"transaction_charge,omitempty"`
		Bearer            string   `json:"bearer,omitempty"`
	}{
		Email:       init.Email,
		Amount:      domain.MinorUnits(init.Amount),
		Currency:    init.Currency,
		Reference:   init.Reference,
		CallbackURL: init.CallbackURL,
		Metadata:    init.Metadata,
		Subaccount:  init.Subaccount,
	}
	if init.Subaccount != "" {
		payload.TransactionCharge = domain.MinorUnits(init.TransactionCharge)
		payload.Bearer = splitBearer(init.Bearer)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var auth Authorization
	if err := c.do(req, &auth); err != nil {
		return nil, errors.Wrapf(err, "initialize %s", init.Reference)
	}
	return &auth, nil
}

// splitBearer maps the fee-bearer policy to the gateway's split-payment
// bearer field: when the organizer absorbs the processor cut the charge is
// taken from the subaccount's share.
func splitBearer(b domain.FeeBearer) string {
	if b == domain.FeeBearerOrganizer {
		return "subaccount"
	}
	return "account"
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrap(err, "decode gateway response")
	}
	if resp.StatusCode >= 400 || !env.Status {
		return errors.Newf("gateway error (%d): %s", resp.StatusCode, env.Message)
	}
	return json.Unmarshal(env.Data, out)
}
