package processor

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePayments records the last create request and answers with canned responses.
type fakePayments struct {
	created   *payment.Request
	createRes *payment.Response
	getRes    map[int]*payment.Response
	err       error
}

func (f *fakePayments) Create(ctx context.Context, req payment.Request) (*payment.Response, error) {
	f.created = &req
	if f.err != nil {
		return nil, f.err
	}
	return f.createRes, nil
}

func (f *fakePayments) Get(ctx context.Context, id int) (*payment.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	res, ok := f.getRes[id]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return res, nil
}

func (f *fakePayments) Search(ctx context.Context, req payment.SearchRequest) (*payment.SearchResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePayments) Cancel(ctx context.Context, id int) (*payment.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePayments) Capture(ctx context.Context, id int) (*payment.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePayments) CaptureAmount(ctx context.Context, id int, amount float64) (*payment.Response, error) {
	return nil, errors.New("not implemented")
}

var mpNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMercadoPago(client payment.Client) *MercadoPago {
	return &MercadoPago{
		client:          client,
		notificationURL: "https://pay.example.com/webhooks/mercadopago",
		scanExpiry:      15 * time.Minute,
		timeout:         time.Second,
		now:             func() time.Time { return mpNow },
	}
}

func TestMercadoPago_CreateCharge_Card(t *testing.T) {
	client := &fakePayments{createRes: &payment.Response{
		ID:                123456,
		ExternalReference: "attempt-1",
		TransactionAmount: 1000,
		CurrencyID:        "BRL",
		Status:            "approved",
	}}
	m := newTestMercadoPago(client)

	c, err := m.CreateCharge(context.Background(), CreateChargeRequest{
		Reference:   "attempt-1",
		Method:      MethodCard,
		Token:       "tok_abc",
		CardBrand:   "Visa",
		AmountMinor: 100000,
		Currency:    "BRL",
		Description: "Go in Practice",
		PayerEmail:  "payer@example.com",
	})
	require.NoError(t, err)

	require.NotNil(t, client.created)
	assert.Equal(t, "tok_abc", client.created.Token)
	assert.Equal(t, "visa", client.created.PaymentMethodID)
	assert.Equal(t, 1, client.created.Installments)
	assert.Equal(t, 1000.0, client.created.TransactionAmount)
	assert.Equal(t, "attempt-1", client.created.ExternalReference)
	assert.Equal(t, "https://pay.example.com/webhooks/mercadopago", client.created.NotificationURL)
	assert.Equal(t, "payer@example.com", client.created.Payer.Email)
	assert.Nil(t, client.created.DateOfExpiration)

	assert.Equal(t, "123456", c.ID)
	assert.Equal(t, ChargeStatusSuccessful, c.Status)
	assert.Equal(t, int64(100000), c.AmountMinor)
	assert.Nil(t, c.ExpiresAt)
}

func TestMercadoPago_CreateCharge_CardRequiresBrand(t *testing.T) {
	client := &fakePayments{}
	m := newTestMercadoPago(client)

	_, err := m.CreateCharge(context.Background(), CreateChargeRequest{
		Method:      MethodCard,
		Token:       "tok_abc",
		AmountMinor: 100000,
	})

	var decline *domainErrors.DeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "invalid_card", decline.Code)
	assert.ErrorIs(t, err, domainErrors.ErrChargeDeclined)
	assert.Nil(t, client.created, "nothing is sent to the processor")
}

func TestMercadoPago_CreateCharge_CardRejected(t *testing.T) {
	client := &fakePayments{createRes: &payment.Response{
		ID:                777,
		TransactionAmount: 1000,
		Status:            "rejected",
		StatusDetail:      "cc_rejected_insufficient_amount",
	}}

	c, err := newTestMercadoPago(client).CreateCharge(context.Background(), CreateChargeRequest{
		Method: MethodCard, Token: "tok_abc", CardBrand: "master", AmountMinor: 100000,
	})
	require.NoError(t, err)
	assert.Equal(t, ChargeStatusFailed, c.Status)
	assert.Equal(t, "cc_rejected_insufficient_amount", c.FailureCode)
	assert.Equal(t, "rejected: cc_rejected_insufficient_amount", c.FailureMessage)
}

func TestMercadoPago_CreateCharge_ScanPix(t *testing.T) {
	client := &fakePayments{createRes: &payment.Response{
		ID:                555,
		TransactionAmount: 850,
		Status:            "pending",
		PointOfInteraction: payment.PointOfInteractionResponse{
			TransactionData: payment.TransactionDataResponse{
				QRCodeBase64: "iVBORw0KGgo=",
				TicketURL:    "https://mpago.la/ticket/555",
			},
		},
	}}
	m := newTestMercadoPago(client)

	c, err := m.CreateCharge(context.Background(), CreateChargeRequest{
		Reference:   "attempt-2",
		Method:      MethodScan,
		AmountMinor: 85000,
	})
	require.NoError(t, err)

	assert.Equal(t, "pix", client.created.PaymentMethodID)
	assert.Empty(t, client.created.Token)
	require.NotNil(t, client.created.DateOfExpiration)
	assert.Equal(t, mpNow.Add(15*time.Minute), *client.created.DateOfExpiration)

	assert.Equal(t, ChargeStatusPending, c.Status)
	assert.Equal(t, "pix", c.SourceID)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", c.ScannableImageURI)
	assert.Equal(t, "https://mpago.la/ticket/555", c.AuthorizeURI)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, mpNow.Add(15*time.Minute), *c.ExpiresAt)
}

func TestMercadoPago_CreateCharge_ScanUsesProcessorExpiry(t *testing.T) {
	expiry := mpNow.Add(10 * time.Minute)
	client := &fakePayments{createRes: &payment.Response{
		ID:               556,
		Status:           "pending",
		DateOfExpiration: expiry,
	}}

	c, err := newTestMercadoPago(client).CreateCharge(context.Background(), CreateChargeRequest{
		Method: MethodScan, SourceID: "bolbradesco", AmountMinor: 85000,
	})
	require.NoError(t, err)
	assert.Equal(t, "bolbradesco", client.created.PaymentMethodID)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, expiry, *c.ExpiresAt)
}

func TestMercadoPago_CreateCharge_ClientError(t *testing.T) {
	client := &fakePayments{err: errors.New("connection reset")}

	_, err := newTestMercadoPago(client).CreateCharge(context.Background(), CreateChargeRequest{
		Method: MethodScan, AmountMinor: 85000,
	})
	assert.ErrorContains(t, err, "connection reset")
	assert.NotErrorIs(t, err, domainErrors.ErrChargeDeclined)
}

func TestMercadoPago_RetrieveCharge(t *testing.T) {
	client := &fakePayments{getRes: map[int]*payment.Response{
		1: {ID: 1, Status: "approved", TransactionAmount: 19.99, ExternalReference: "attempt-1"},
		2: {ID: 2, Status: "in_process", TransactionAmount: 19.99},
		3: {ID: 3, Status: "cancelled", StatusDetail: "expired", TransactionAmount: 19.99},
	}}
	m := newTestMercadoPago(client)

	tests := []struct {
		id     string
		status ChargeStatus
	}{
		{"1", ChargeStatusSuccessful},
		{"2", ChargeStatusPending},
		{"3", ChargeStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			c, err := m.RetrieveCharge(context.Background(), tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.id, c.ID)
			assert.Equal(t, tt.status, c.Status)
			assert.Equal(t, int64(1999), c.AmountMinor)
		})
	}

	c, err := m.RetrieveCharge(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "expired", c.FailureCode)

	_, err = m.RetrieveCharge(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, domainErrors.ErrChargeNotFound)

	_, err = m.RetrieveCharge(context.Background(), "404")
	assert.Error(t, err)
}

func TestMercadoPago_ParseEvent(t *testing.T) {
	m := &MercadoPago{}

	ev, err := m.ParseEvent([]byte(`{"id":12345,"type":"payment","action":"payment.updated","data":{"id":"987654"}}`))
	require.NoError(t, err)
	assert.Equal(t, "12345", ev.ID)
	assert.Equal(t, "payment.updated", ev.Kind)
	assert.Equal(t, "987654", ev.ChargeID)
	assert.Nil(t, ev.Charge, "notifications never carry a status")

	_, err = m.ParseEvent([]byte(`{"type":"payment","data":{}}`))
	assert.ErrorIs(t, err, domainErrors.ErrMalformedEvent)
}

func TestMercadoPago_VerifySignature(t *testing.T) {
	const secret = "mp-webhook-secret"
	m := &MercadoPago{webhookSecret: secret}
	payload := []byte(`{"action":"payment.updated","data":{"id":"987654"}}`)

	sig := signHMAC("id:987654;request-id:req-1;ts:1700000000;", secret)

	t.Run("valid", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Signature", "ts=1700000000,v1="+sig)
		h.Set("X-Request-Id", "req-1")
		err := m.VerifySignature(SignedRequest{Header: h, Query: url.Values{"data.id": {"987654"}}, Payload: payload})
		assert.NoError(t, err)
	})

	t.Run("data id from body", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Signature", "ts=1700000000,v1="+sig)
		h.Set("X-Request-Id", "req-1")
		err := m.VerifySignature(SignedRequest{Header: h, Query: url.Values{}, Payload: payload})
		assert.NoError(t, err)
	})

	t.Run("wrong request id", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Signature", "ts=1700000000,v1="+sig)
		h.Set("X-Request-Id", "req-2")
		err := m.VerifySignature(SignedRequest{Header: h, Query: url.Values{}, Payload: payload})
		assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
	})

	t.Run("malformed header", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Signature", "garbage")
		err := m.VerifySignature(SignedRequest{Header: h, Query: url.Values{}, Payload: payload})
		assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
	})
}

func TestMapStatus(t *testing.T) {
	tests := map[string]ChargeStatus{
		"approved":     ChargeStatusSuccessful,
		"pending":      ChargeStatusPending,
		"in_process":   ChargeStatusPending,
		"authorized":   ChargeStatusPending,
		"rejected":     ChargeStatusFailed,
		"cancelled":    ChargeStatusFailed,
		"charged_back": ChargeStatusFailed,
	}
	for in, want := range tests {
		assert.Equal(t, want, mapStatus(in), in)
	}
}

func TestAmountConversion(t *testing.T) {
	assert.Equal(t, 1000.0, toMajor(100000))
	assert.Equal(t, 8.5, toMajor(850))
	assert.Equal(t, int64(100000), toMinor(1000))
	assert.Equal(t, int64(1999), toMinor(19.99))
}

func TestParseSignatureHeader(t *testing.T) {
	ts, v1 := parseSignatureHeader("ts=1704908010, v1=618c85345248dd820d5fd456117c2ab2ef8eda45a0282ff693eac24131a5e839")
	assert.Equal(t, "1704908010", ts)
	assert.Equal(t, "618c85345248dd820d5fd456117c2ab2ef8eda45a0282ff693eac24131a5e839", v1)
}
