package processor

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/google/uuid"
)

// Card tokens with fixed outcomes on the mock processor.
const (
	MockTokenDeclined = "tok_declined"
	MockTokenInvalid  = "tok_invalid"
	MockTokenPending  = "tok_pending"
)

const (
	MockSignatureHeader = "X-Mock-Signature"

	MockEventComplete = "charge.complete"
)

// MockProcessor keeps charges in memory. Card charges resolve immediately,
// scan charges stay pending until Complete, Fail or Expire is called.
type MockProcessor struct {
	name          string
	webhookSecret string
	scanExpiry    time.Duration
	latency       time.Duration
	now           func() time.Time

	mu      sync.Mutex
	charges map[string]*Charge
}

type MockOption func(*MockProcessor)

func WithWebhookSecret(secret string) MockOption {
	return func(p *MockProcessor) { p.webhookSecret = secret }
}

func WithScanExpiry(d time.Duration) MockOption {
	return func(p *MockProcessor) { p.scanExpiry = d }
}

func WithLatency(d time.Duration) MockOption {
	return func(p *MockProcessor) { p.latency = d }
}

func WithClock(now func() time.Time) MockOption {
	return func(p *MockProcessor) { p.now = now }
}

func NewMockProcessor(name string, opts ...MockOption) *MockProcessor {
	p := &MockProcessor{
		name:       name,
		scanExpiry: 15 * time.Minute,
		now:        time.Now,
		charges:    make(map[string]*Charge),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProcessor) Name() string { return p.name }

func (p *MockProcessor) CreateCharge(ctx context.Context, req CreateChargeRequest) (*Charge, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if req.AmountMinor <= 0 {
		return nil, domainErrors.NewDeclineError("invalid_amount", "amount must be positive")
	}

	c := &Charge{
		ID:          "chrg_mock_" + uuid.New().String()[:12],
		Reference:   req.Reference,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}

	switch req.Method {
	case MethodCard:
		switch req.Token {
		case "":
			return nil, domainErrors.NewDeclineError("invalid_card", "card token is required")
		case MockTokenInvalid:
			return nil, domainErrors.NewDeclineError("invalid_card", "card token is invalid or already used")
		case MockTokenDeclined:
			c.Status = ChargeStatusFailed
			c.FailureCode = "insufficient_fund"
			c.FailureMessage = "insufficient funds in the account or the card has reached the credit limit"
		case MockTokenPending:
			c.Status = ChargeStatusPending
			c.AuthorizeURI = fmt.Sprintf("https://mock.processor.local/authorize/%s", c.ID)
		default:
			c.Status = ChargeStatusSuccessful
		}
	case MethodScan:
		if req.SourceID == "" {
			return nil, domainErrors.NewDeclineError("invalid_source", "source reference is required")
		}
		expires := p.now().Add(p.scanExpiry).UTC()
		c.SourceID = req.SourceID
		c.Status = ChargeStatusPending
		c.ScannableImageURI = fmt.Sprintf("https://mock.processor.local/qr/%s.svg", c.ID)
		c.ExpiresAt = &expires
	default:
		return nil, domainErrors.NewDeclineError("invalid_payment_method", fmt.Sprintf("unsupported method %q", req.Method))
	}

	p.mu.Lock()
	p.charges[c.ID] = c
	p.mu.Unlock()

	out := *c
	return &out, nil
}

func (p *MockProcessor) RetrieveCharge(ctx context.Context, chargeID string) (*Charge, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.charges[chargeID]
	if !ok {
		return nil, fmt.Errorf("charge %s: %w", chargeID, domainErrors.ErrChargeNotFound)
	}
	if c.Status == ChargeStatusPending && c.ExpiresAt != nil && p.now().After(*c.ExpiresAt) {
		c.Status = ChargeStatusExpired
		c.FailureCode = "expired_charge"
		c.FailureMessage = "charge expired"
	}
	out := *c
	return &out, nil
}

// Complete marks a pending charge successful, as a payer scanning the code would.
func (p *MockProcessor) Complete(chargeID string) (*Charge, error) {
	return p.resolve(chargeID, ChargeStatusSuccessful, "", "")
}

func (p *MockProcessor) Fail(chargeID, code, message string) (*Charge, error) {
	return p.resolve(chargeID, ChargeStatusFailed, code, message)
}

func (p *MockProcessor) Expire(chargeID string) (*Charge, error) {
	return p.resolve(chargeID, ChargeStatusExpired, "expired_charge", "charge expired")
}

func (p *MockProcessor) resolve(chargeID string, status ChargeStatus, code, message string) (*Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.charges[chargeID]
	if !ok {
		return nil, fmt.Errorf("charge %s: %w", chargeID, domainErrors.ErrChargeNotFound)
	}
	if c.Status.IsTerminal() {
		return nil, fmt.Errorf("charge %s already %s", chargeID, c.Status)
	}
	c.Status = status
	c.FailureCode = code
	c.FailureMessage = message
	out := *c
	return &out, nil
}

type mockEvent struct {
	ID   string          `json:"id"`
	Kind string          `json:"kind"`
	Data mockEventCharge `json:"data"`
}

type mockEventCharge struct {
	ID             string       `json:"id"`
	Status         ChargeStatus `json:"status,omitempty"`
	Amount         int64        `json:"amount,omitempty"`
	Currency       string       `json:"currency,omitempty"`
	FailureCode    string       `json:"failure_code,omitempty"`
	FailureMessage string       `json:"failure_message,omitempty"`
}

// EventPayload renders the callback body the mock processor would deliver
// for the charge's current state.
func (p *MockProcessor) EventPayload(chargeID string) ([]byte, error) {
	p.mu.Lock()
	c, ok := p.charges[chargeID]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("charge %s: %w", chargeID, domainErrors.ErrChargeNotFound)
	}
	ev := mockEvent{
		ID:   "evnt_mock_" + uuid.New().String()[:12],
		Kind: MockEventComplete,
		Data: mockEventCharge{
			ID:             c.ID,
			Status:         c.Status,
			Amount:         c.AmountMinor,
			Currency:       c.Currency,
			FailureCode:    c.FailureCode,
			FailureMessage: c.FailureMessage,
		},
	}
	p.mu.Unlock()

	return json.Marshal(ev)
}

func (p *MockProcessor) ParseEvent(payload []byte) (*Event, error) {
	var ev mockEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrMalformedEvent, err)
	}
	if ev.Data.ID == "" {
		return nil, fmt.Errorf("%w: missing charge id", domainErrors.ErrMalformedEvent)
	}

	out := &Event{ID: ev.ID, Kind: ev.Kind, ChargeID: ev.Data.ID}
	if ev.Data.Status != "" {
		out.Charge = &Charge{
			ID:             ev.Data.ID,
			AmountMinor:    ev.Data.Amount,
			Currency:       ev.Data.Currency,
			Status:         ev.Data.Status,
			FailureCode:    ev.Data.FailureCode,
			FailureMessage: ev.Data.FailureMessage,
		}
	}
	return out, nil
}

// Sign returns the signature header value for payload.
func (p *MockProcessor) Sign(payload []byte) string {
	h := hmac.New(sha256.New, []byte(p.webhookSecret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature is a no-op when no webhook secret is configured.
func (p *MockProcessor) VerifySignature(req SignedRequest) error {
	if p.webhookSecret == "" {
		return nil
	}
	got := req.Header.Get(MockSignatureHeader)
	if got == "" || !hmac.Equal([]byte(got), []byte(p.Sign(req.Payload))) {
		return domainErrors.ErrInvalidSignature
	}
	return nil
}

func (p *MockProcessor) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
