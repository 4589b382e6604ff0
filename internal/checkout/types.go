package checkout

import "time"

// Result is the normalized outcome every operation returns to its caller.
// Success is the single source of truth; ResultCode "999" marks a
// transport failure rather than a gateway decline.
type Result struct {
	Success        bool    `json:"success"`
	ResultCode     string  `json:"resultCode,omitempty"`
	Message        string  `json:"message"`
	OrderID        string  `json:"orderId,omitempty"`
	AuthCode       string  `json:"authCode,omitempty"`
	PasRef         string  `json:"pasRef,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	SignatureValid *bool   `json:"signatureValid,omitempty"`
}

// AuthIntent is caller input for a direct card payment. Amount is a
// major-unit decimal string ("12.34"); it goes onto the wire in minor
// units.
type AuthIntent struct {
	Amount      string
	Currency    string
	PAN         string
	CardHolder  string
	ExpiryMonth string
	ExpiryYear  string
	CVN         string
	UserID      string
}

// RefundIntent refunds a prior transaction. Amount is optional; empty
// means a full refund of the original amount.
type RefundIntent struct {
	OrderID string
	Amount  string
	UserID  string
}

// StoreCardIntent tokenizes a card. With an authenticated user and the
// vault enabled, the card is stored gateway-side; otherwise a
// reference-only token is created.
type StoreCardIntent struct {
	PAN         string
	CardHolder  string
	ExpiryMonth string
	ExpiryYear  string
	Email       string
	UserID      string
}

// ChargeIntent charges a stored card token.
type ChargeIntent struct {
	Token    string
	Amount   string
	Currency string
	CVN      string
	UserID   string
}

// HPPIntent requests a hosted-payment-page handoff.
type HPPIntent struct {
	Amount        string
	Currency      string
	CustomerEmail string
	UserID        string
}

// HPPPayload is what the browser needs to reach the hosted page: the
// gateway URL and the signed parameter set to POST there as a form.
type HPPPayload struct {
	URL    string            `json:"hppUrl"`
	Fields map[string]string `json:"hppData"`
}

// HPPResponse carries the fields posted back by the gateway (or relayed
// by the client-side message channel) after a hosted-page payment.
type HPPResponse struct {
	Result     string
	Message    string
	OrderID    string
	PasRef     string
	AuthCode   string
	SHA1Hash   string
	Amount     string
	Currency   string
	Timestamp  string
	MerchantID string
	UserID     string
}

// wireTimestamp renders the gateway's YYYYMMDDHHMMSS request timestamp.
func wireTimestamp(t time.Time) string {
	return t.Format("20060102150405")
}
