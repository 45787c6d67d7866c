package processor

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// ChargeStatus is the processor-side lifecycle of a charge.
type ChargeStatus string

const (
	ChargeStatusPending    ChargeStatus = "pending"
	ChargeStatusSuccessful ChargeStatus = "successful"
	ChargeStatusFailed     ChargeStatus = "failed"
	ChargeStatusExpired    ChargeStatus = "expired"
)

// IsTerminal reports whether the charge has resolved one way or the other.
func (s ChargeStatus) IsTerminal() bool {
	return s == ChargeStatusSuccessful || s == ChargeStatusFailed || s == ChargeStatusExpired
}

type Charge struct {
	ID                string
	Reference         string
	SourceID          string
	AmountMinor       int64
	Currency          string
	Status            ChargeStatus
	FailureCode       string
	FailureMessage    string
	ScannableImageURI string
	AuthorizeURI      string
	ExpiresAt         *time.Time
}

type Processor interface {
	// Name returns the processor name used in routes and config.
	Name() string
	// CreateCharge creates an instant-capture card charge or a charge against an async source.
	CreateCharge(ctx context.Context, req CreateChargeRequest) (*Charge, error)
	// RetrieveCharge returns the processor's authoritative view of a charge.
	RetrieveCharge(ctx context.Context, chargeID string) (*Charge, error)
	// ParseEvent decodes a callback body.
	ParseEvent(payload []byte) (*Event, error)
	// VerifySignature authenticates a callback before it is interpreted.
	VerifySignature(req SignedRequest) error
}

type Method string

const (
	MethodCard Method = "card"
	MethodScan Method = "scan"
)

type CreateChargeRequest struct {
	Reference   string
	Method      Method
	Token       string // card
	CardBrand   string // card, e.g. "visa"; required by processors that route by network
	SourceID    string // scan
	AmountMinor int64
	Currency    string
	Description string
	PayerEmail  string
}

// Event is a decoded processor callback. A nil Charge means the event only
// names the charge and its status has to be retrieved.
type Event struct {
	ID       string
	Kind     string
	ChargeID string
	Charge   *Charge
}

// SignedRequest carries the parts of an inbound callback a processor signs.
type SignedRequest struct {
	Header  http.Header
	Query   url.Values
	Payload []byte
}

// Signature returns the signature header of whichever processor signed the request.
func (r SignedRequest) Signature() string {
	for _, h := range []string{MockSignatureHeader, MercadoPagoSignatureHeader} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return ""
}
