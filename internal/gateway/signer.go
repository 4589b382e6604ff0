package gateway

import (
	"crypto/subtle"
	"strings"
)

// ClientAssertedSignature is the sentinel the lightbox/iframe message
// channel posts in place of a real SHA1HASH. Accepting it means trusting
// the browser's result code outright — a deliberate trust-boundary
// relaxation that callers must opt into explicitly.
const ClientAssertedSignature = "client-side"

// Signer computes the gateway's two-stage SHA-1 signatures for a single
// shared secret. The direct-API family (auth, rebate, tokenization) and the
// HPP family use different secrets, so two Signer values exist side by
// side; signing with the wrong one produces a hash that never validates.
type Signer struct {
	secret string
}

// NewSigner binds a Signer to one shared secret.
func NewSigner(secret string) Signer {
	return Signer{secret: secret}
}

// Sign joins the fields with "." in the given order, hashes once, then
// hashes the result together with the secret:
//
//	sha1( sha1(f1.f2...fn) + "." + secret )
//
// Empty fields stay as empty slots between dots, never dropped. Fields
// containing a literal "." are not escaped; the gateway's scheme has no
// escaping and the field orders are chosen so it does not matter.
func (s Signer) Sign(fields ...string) string {
	first := Hash(strings.Join(fields, "."))
	return Hash(first + "." + s.secret)
}

// SignAuth covers a direct card payment:
// timestamp.merchantid.orderid.amount.currency.cardnumber
func (s Signer) SignAuth(timestamp, merchantID, orderID, amount, currency, pan string) string {
	return s.Sign(timestamp, merchantID, orderID, amount, currency, pan)
}

// SignRebate covers a refund. The gateway leaves the amount and currency
// slots empty here.
func (s Signer) SignRebate(timestamp, merchantID, orderID string) string {
	return s.Sign(timestamp, merchantID, orderID, "", "")
}

// SignHPPRequest covers the hosted-page handoff parameters.
func (s Signer) SignHPPRequest(timestamp, merchantID, orderID, amount, currency string) string {
	return s.Sign(timestamp, merchantID, orderID, amount, currency)
}

// SignHPPResponse covers the fields echoed back by the hosted page.
func (s Signer) SignHPPResponse(timestamp, merchantID, orderID, result, message, pasRef, authCode string) string {
	return s.Sign(timestamp, merchantID, orderID, result, message, pasRef, authCode)
}

// SignPayerNew covers customer tokenization.
func (s Signer) SignPayerNew(timestamp, merchantID, orderID, payerRef string) string {
	return s.Sign(timestamp, merchantID, orderID, "", "", payerRef)
}

// SignCardNew covers card tokenization under an existing payer reference.
func (s Signer) SignCardNew(timestamp, merchantID, orderID, payerRef, cardHolderName, pan string) string {
	return s.Sign(timestamp, merchantID, orderID, "", payerRef, cardHolderName, pan)
}

// SignReceiptIn covers charging a previously tokenized payer/card pair.
func (s Signer) SignReceiptIn(timestamp, merchantID, orderID, amount, currency string) string {
	return s.Sign(timestamp, merchantID, orderID, amount, currency)
}

// VerifyHPPResponse recomputes the HPP response signature from the inbound
// fields and compares it to the provided hash in constant time.
func (s Signer) VerifyHPPResponse(timestamp, merchantID, orderID, result, message, pasRef, authCode, provided string) bool {
	expected := s.SignHPPResponse(timestamp, merchantID, orderID, result, message, pasRef, authCode)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
