package checkout

import (
	"context"
	"fmt"
	"strconv"

	"gpcheckout.org/internal/audit"
	"gpcheckout.org/internal/gateway"
	"gpcheckout.org/internal/ids"
	"gpcheckout.org/internal/ledger"
)

// HPPRequest builds the signed parameter set the browser posts to the
// hosted payment page. No gateway call happens here and nothing is
// recorded yet; the ledger entry is written when the response comes back.
func (s *Service) HPPRequest(ctx context.Context, in HPPIntent) (HPPPayload, error) {
	if err := requireFields(map[string]string{
		"amount":   in.Amount,
		"currency": in.Currency,
	}); err != nil {
		return HPPPayload{}, err
	}
	minor, err := minorUnits(in.Amount)
	if err != nil {
		return HPPPayload{}, err
	}

	now := s.now()
	orderID := fmt.Sprintf("HPP-%d", now.UnixMilli())
	timestamp := wireTimestamp(now)
	amount := strconv.FormatInt(minor, 10)

	fields := map[string]string{
		"TIMESTAMP":             timestamp,
		"MERCHANT_ID":           s.hpp.MerchantID,
		"ACCOUNT":               s.hpp.Account,
		"ORDER_ID":              orderID,
		"AMOUNT":                amount,
		"CURRENCY":              in.Currency,
		"AUTO_SETTLE_FLAG":      "1",
		"MERCHANT_RESPONSE_URL": s.hpp.ResponseURL,
		"HPP_VERSION":           "2",
		"COMMENT1":              "gpcheckout demo",
		"COMMENT2":              "hpp",
		"SHA1HASH":              s.hppSigner.SignHPPRequest(timestamp, s.hpp.MerchantID, orderID, amount, in.Currency),
	}
	if in.CustomerEmail != "" {
		fields["CUST_NUM"] = in.CustomerEmail
	}

	_ = audit.LogEvent(ctx, "hpp.token", map[string]any{
		"order_id": orderID,
		"amount":   amount,
		"currency": in.Currency,
	})

	return HPPPayload{URL: s.hpp.URL, Fields: fields}, nil
}

// HandleHPPResponse authenticates and records a hosted-page result. Every
// attempt is persisted, including ones with an invalid signature — the
// validity lands in the record rather than dropping the event, so forged
// or misconfigured callbacks stay visible in the ledger.
func (s *Service) HandleHPPResponse(ctx context.Context, in HPPResponse) (Result, error) {
	sigValid := false
	switch {
	case in.SHA1Hash == gateway.ClientAssertedSignature:
		// The client-side message channel cannot compute a real hash.
		// Trusting it is an explicit opt-in, and even then the result
		// code is the only thing vouched for.
		sigValid = s.allowClientResult && in.Result == "00"
	default:
		merchantID := firstNonEmpty(in.MerchantID, s.hpp.MerchantID)
		sigValid = s.hppSigner.VerifyHPPResponse(
			in.Timestamp, merchantID, in.OrderID,
			in.Result, in.Message, in.PasRef, in.AuthCode,
			in.SHA1Hash,
		)
	}

	success := in.Result == "00" && sigValid

	var amount float64
	if minor, err := strconv.ParseInt(in.Amount, 10, 64); err == nil {
		amount = majorUnits(minor)
	}

	rec := ledger.Record{
		ID:             ids.New(),
		OrderID:        in.OrderID,
		Timestamp:      s.now(),
		Amount:         amount,
		Currency:       in.Currency,
		Success:        success,
		ResultCode:     in.Result,
		Message:        in.Message,
		AuthCode:       in.AuthCode,
		PasRef:         in.PasRef,
		Channel:        ledger.ChannelHPP,
		SignatureValid: &sigValid,
		UserID:         in.UserID,
	}
	s.persist(ctx, rec)

	_ = audit.LogEvent(ctx, "hpp.response", map[string]any{
		"order_id":        in.OrderID,
		"result":          in.Result,
		"signature_valid": sigValid,
		"client_asserted": in.SHA1Hash == gateway.ClientAssertedSignature,
	})

	return Result{
		Success:        success,
		ResultCode:     in.Result,
		Message:        in.Message,
		OrderID:        in.OrderID,
		AuthCode:       in.AuthCode,
		PasRef:         in.PasRef,
		Amount:         amount,
		Currency:       in.Currency,
		SignatureValid: &sigValid,
	}, nil
}
