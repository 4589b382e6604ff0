package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gpcheckout.org/internal/audit"
	"gpcheckout.org/internal/cards"
	"gpcheckout.org/internal/gateway"
	"gpcheckout.org/internal/ids"
	"gpcheckout.org/internal/ledger"
)

// StoreCard tokenizes a card. For an authenticated user with the vault
// enabled it creates a gateway payer (once per user) and stores the card
// under it; on any gateway failure, or for anonymous callers, it falls
// back to a reference-only token. The caller always gets a card record;
// StoredInVault says whether it is chargeable.
func (s *Service) StoreCard(ctx context.Context, in StoreCardIntent) (cards.Card, error) {
	if err := requireFields(map[string]string{
		"cardNumber":  in.PAN,
		"cardHolder":  in.CardHolder,
		"expiryMonth": in.ExpiryMonth,
		"expiryYear":  in.ExpiryYear,
	}); err != nil {
		return cards.Card{}, err
	}

	var payerRef, cardRef string
	vaulted := false
	if s.vault.enabled && in.UserID != "" && s.users != nil {
		payerRef = s.ensurePayerRef(ctx, in)
		if payerRef != "" {
			cardRef = s.storeCardInVault(ctx, payerRef, in)
			vaulted = cardRef != ""
		}
	}

	card := cards.Card{
		Token:         ids.New(),
		UserID:        in.UserID,
		MaskedPAN:     gateway.MaskPAN(in.PAN),
		Brand:         gateway.InferBrand(in.PAN),
		HolderName:    in.CardHolder,
		ExpiryMonth:   in.ExpiryMonth,
		ExpiryYear:    in.ExpiryYear,
		CreatedAt:     s.now(),
		StoredInVault: vaulted,
	}
	if vaulted {
		card.PayerRef = payerRef
		card.CardRef = cardRef
	}
	if err := s.cards.Save(ctx, card); err != nil {
		return cards.Card{}, err
	}
	return card, nil
}

// ensurePayerRef returns the user's gateway payer reference, creating one
// via payer-new when absent. An empty return means tokenization is not
// possible and the card falls back to reference-only storage.
func (s *Service) ensurePayerRef(ctx context.Context, in StoreCardIntent) string {
	user, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return ""
	}
	if user.PayerRef != "" {
		return user.PayerRef
	}

	payerRef := uuid.NewString()
	now := s.now()
	timestamp := wireTimestamp(now)
	orderID := fmt.Sprintf("PAYER-%d", now.UnixMilli())
	first, last := splitName(in.CardHolder)
	if user.Name != "" {
		first, last = splitName(user.Name)
	}

	req := gateway.PayerNewRequest{
		Timestamp:  timestamp,
		MerchantID: s.api.MerchantID,
		Account:    s.vault.account,
		OrderID:    orderID,
		PayerRef:   payerRef,
		FirstName:  first,
		Surname:    last,
		Email:      firstNonEmpty(user.Email, in.Email),
		Hash:       s.apiSigner.SignPayerNew(timestamp, s.api.MerchantID, orderID, payerRef),
	}

	_ = audit.LogEvent(ctx, "gateway.payer-new", map[string]any{
		"order_id":  orderID,
		"payer_ref": payerRef,
	})

	resp, err := s.client.Post(ctx, "payer-new", req.XML())
	if err != nil || !resp.Approved() {
		return ""
	}
	if err := s.users.SetPayerRef(ctx, in.UserID, payerRef); err != nil {
		return ""
	}
	return payerRef
}

// storeCardInVault issues card-new under the payer reference. An empty
// return means the gateway rejected the card.
func (s *Service) storeCardInVault(ctx context.Context, payerRef string, in StoreCardIntent) string {
	cardRef := uuid.NewString()
	now := s.now()
	timestamp := wireTimestamp(now)
	orderID := fmt.Sprintf("CARD-%d", now.UnixMilli())

	req := gateway.CardNewRequest{
		Timestamp:  timestamp,
		MerchantID: s.api.MerchantID,
		Account:    s.vault.account,
		OrderID:    orderID,
		CardRef:    cardRef,
		PayerRef:   payerRef,
		PAN:        in.PAN,
		ExpiryMMYY: in.ExpiryMonth + in.ExpiryYear,
		CardHolder: in.CardHolder,
		Brand:      gateway.InferBrand(in.PAN),
		Hash:       s.apiSigner.SignCardNew(timestamp, s.api.MerchantID, orderID, payerRef, in.CardHolder, in.PAN),
	}

	_ = audit.LogEvent(ctx, "gateway.card-new", map[string]any{
		"order_id":  orderID,
		"payer_ref": payerRef,
		"card":      gateway.MaskPAN(in.PAN),
	})

	resp, err := s.client.Post(ctx, "card-new", req.XML())
	if err != nil || !resp.Approved() {
		return ""
	}
	return cardRef
}

// ChargeStoredCard charges a vaulted token via receipt-in. Reference-only
// tokens fail before any network traffic.
func (s *Service) ChargeStoredCard(ctx context.Context, in ChargeIntent) (Result, error) {
	if err := requireFields(map[string]string{
		"token":    in.Token,
		"amount":   in.Amount,
		"currency": in.Currency,
	}); err != nil {
		return Result{}, err
	}

	card, err := s.cards.Find(ctx, in.Token)
	if err != nil {
		if errors.Is(err, cards.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: unknown card token", ErrNotFound)
		}
		return Result{}, err
	}
	if card.UserID != "" && in.UserID != "" && card.UserID != in.UserID {
		return Result{}, fmt.Errorf("%w: unknown card token", ErrNotFound)
	}
	if !card.StoredInVault {
		return Result{}, fmt.Errorf("%w: card %s is stored locally only and cannot be charged; re-add it with the vault enabled", ErrNotSupported, card.MaskedPAN)
	}

	minor, err := minorUnits(in.Amount)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	orderID := fmt.Sprintf("REC-%d", now.UnixMilli())
	timestamp := wireTimestamp(now)
	amount := strconv.FormatInt(minor, 10)

	req := gateway.ReceiptInRequest{
		Timestamp:  timestamp,
		MerchantID: s.api.MerchantID,
		Account:    s.vault.account,
		OrderID:    orderID,
		Amount:     amount,
		Currency:   in.Currency,
		PayerRef:   card.PayerRef,
		CardRef:    card.CardRef,
		CVN:        in.CVN,
		Hash:       s.apiSigner.SignReceiptIn(timestamp, s.api.MerchantID, orderID, amount, in.Currency),
	}

	_ = audit.LogEvent(ctx, "gateway.receipt-in", map[string]any{
		"order_id": orderID,
		"token":    card.Token,
		"amount":   amount,
		"currency": in.Currency,
	})

	rec := ledger.Record{
		ID:        ids.New(),
		OrderID:   orderID,
		Timestamp: now,
		Amount:    majorUnits(minor),
		Currency:  in.Currency,
		Channel:   ledger.ChannelStoredCard,
		UserID:    in.UserID,
	}

	resp, err := s.client.Post(ctx, "receipt-in", req.XML())
	if err != nil {
		return s.recordTransportFailure(ctx, rec, err)
	}

	rec.Success = resp.Approved()
	rec.ResultCode = resp.ResultCode
	rec.Message = resp.Message
	rec.AuthCode = resp.AuthCode
	rec.PasRef = resp.PasRef
	rec.RawResponse = resp.Raw
	s.persist(ctx, rec)

	if rec.Success {
		// A declined charge leaves lastUsed untouched.
		_ = s.cards.TouchLastUsed(ctx, card.Token, now)
	}

	return Result{
		Success:    rec.Success,
		ResultCode: rec.ResultCode,
		Message:    rec.Message,
		OrderID:    orderID,
		AuthCode:   rec.AuthCode,
		PasRef:     rec.PasRef,
		Amount:     rec.Amount,
		Currency:   rec.Currency,
	}, nil
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
