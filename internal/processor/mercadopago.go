package processor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/shopspring/decimal"
)

const (
	MercadoPagoName            = "mercadopago"
	MercadoPagoSignatureHeader = "X-Signature"

	defaultScanMethod = "pix"
)

// MercadoPago talks to the Mercado Pago payments API.
type MercadoPago struct {
	client          payment.Client
	webhookSecret   string
	notificationURL string
	scanExpiry      time.Duration
	timeout         time.Duration
	now             func() time.Time
}

type MercadoPagoConfig struct {
	AccessToken     string
	WebhookSecret   string
	NotificationURL string
	ScanExpiry      time.Duration
	RequestTimeout  time.Duration // zero leaves ctx untouched
}

func NewMercadoPago(cfg MercadoPagoConfig) (*MercadoPago, error) {
	mpCfg, err := config.New(cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}
	return &MercadoPago{
		client:          payment.NewClient(mpCfg),
		webhookSecret:   cfg.WebhookSecret,
		notificationURL: cfg.NotificationURL,
		scanExpiry:      cfg.ScanExpiry,
		timeout:         cfg.RequestTimeout,
		now:             time.Now,
	}, nil
}

func (m *MercadoPago) Name() string { return MercadoPagoName }

func (m *MercadoPago) CreateCharge(ctx context.Context, req CreateChargeRequest) (*Charge, error) {
	mpReq := payment.Request{
		TransactionAmount: toMajor(req.AmountMinor),
		Description:       req.Description,
		ExternalReference: req.Reference,
		NotificationURL:   m.notificationURL,
		Payer:             &payment.PayerRequest{Email: req.PayerEmail},
	}

	switch req.Method {
	case MethodCard:
		if req.Token == "" {
			return nil, domainErrors.NewDeclineError("invalid_card", "card token is required")
		}
		// Token payments are rejected without the card network.
		if req.CardBrand == "" {
			return nil, domainErrors.NewDeclineError("invalid_card", "card_brand is required for card payments")
		}
		mpReq.Token = req.Token
		mpReq.Installments = 1
		mpReq.PaymentMethodID = strings.ToLower(req.CardBrand)
	case MethodScan:
		mpReq.PaymentMethodID = req.SourceID
		if mpReq.PaymentMethodID == "" {
			mpReq.PaymentMethodID = defaultScanMethod
		}
		if m.scanExpiry > 0 {
			expires := m.now().Add(m.scanExpiry).UTC()
			mpReq.DateOfExpiration = &expires
		}
	default:
		return nil, domainErrors.NewDeclineError("invalid_payment_method", fmt.Sprintf("unsupported method %q", req.Method))
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.client.Create(ctx, mpReq)
	if err != nil {
		return nil, fmt.Errorf("mercadopago create payment: %w", err)
	}

	c := fromPayment(res)
	if req.Method == MethodScan {
		c.SourceID = mpReq.PaymentMethodID
		if c.Status == ChargeStatusPending && c.ExpiresAt == nil {
			c.ExpiresAt = mpReq.DateOfExpiration
		}
	}
	return c, nil
}

func (m *MercadoPago) RetrieveCharge(ctx context.Context, chargeID string) (*Charge, error) {
	id, err := strconv.Atoi(chargeID)
	if err != nil {
		return nil, fmt.Errorf("charge %q: %w", chargeID, domainErrors.ErrChargeNotFound)
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.client.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mercadopago get payment %d: %w", id, err)
	}
	return fromPayment(res), nil
}

func (m *MercadoPago) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

type mpNotification struct {
	ID     json.RawMessage `json:"id"`
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ParseEvent decodes a webhook notification. Notifications only carry the
// payment id, so the returned event never has a Charge.
func (m *MercadoPago) ParseEvent(payload []byte) (*Event, error) {
	var n mpNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrMalformedEvent, err)
	}
	if n.Data.ID == "" {
		return nil, fmt.Errorf("%w: missing data.id", domainErrors.ErrMalformedEvent)
	}

	kind := n.Action
	if kind == "" {
		kind = n.Type
	}
	return &Event{
		ID:       string(bytes.Trim(n.ID, `"`)),
		Kind:     kind,
		ChargeID: n.Data.ID,
	}, nil
}

// VerifySignature checks the x-signature header: HMAC-SHA256 over
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func (m *MercadoPago) VerifySignature(req SignedRequest) error {
	header := req.Header.Get(MercadoPagoSignatureHeader)
	if header == "" || m.webhookSecret == "" {
		return domainErrors.ErrInvalidSignature
	}

	ts, v1 := parseSignatureHeader(header)
	if ts == "" || v1 == "" {
		return domainErrors.ErrInvalidSignature
	}

	dataID := req.Query.Get("data.id")
	if dataID == "" {
		if ev, err := m.ParseEvent(req.Payload); err == nil {
			dataID = ev.ChargeID
		}
	}

	manifest := buildManifest(strings.ToLower(dataID), req.Header.Get("X-Request-Id"), ts)
	if !hmac.Equal([]byte(v1), []byte(signHMAC(manifest, m.webhookSecret))) {
		return domainErrors.ErrInvalidSignature
	}
	return nil
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	return ts, v1
}

func buildManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + dataID + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	return b.String()
}

func signHMAC(manifest, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}

func fromPayment(res *payment.Response) *Charge {
	c := &Charge{
		ID:                strconv.Itoa(res.ID),
		Reference:         res.ExternalReference,
		AmountMinor:       toMinor(res.TransactionAmount),
		Currency:          res.CurrencyID,
		Status:            mapStatus(res.Status),
		ScannableImageURI: qrDataURI(res.PointOfInteraction.TransactionData.QRCodeBase64),
		AuthorizeURI:      res.PointOfInteraction.TransactionData.TicketURL,
	}
	if c.Status == ChargeStatusFailed {
		c.FailureCode = res.StatusDetail
		c.FailureMessage = res.Status + ": " + res.StatusDetail
	}
	if !res.DateOfExpiration.IsZero() {
		expires := res.DateOfExpiration.UTC()
		c.ExpiresAt = &expires
	}
	return c
}

func mapStatus(s string) ChargeStatus {
	switch s {
	case "approved":
		return ChargeStatusSuccessful
	case "rejected", "cancelled", "refunded", "charged_back":
		return ChargeStatusFailed
	default:
		// pending, in_process, authorized, in_mediation
		return ChargeStatusPending
	}
}

func qrDataURI(b64 string) string {
	if b64 == "" {
		return ""
	}
	return "data:image/png;base64," + b64
}

func toMajor(minor int64) float64 {
	return decimal.NewFromInt(minor).Shift(-2).InexactFloat64()
}

func toMinor(major float64) int64 {
	return decimal.NewFromFloat(major).Shift(2).Round(0).IntPart()
}
