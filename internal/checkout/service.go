// Package checkout sequences every payment operation: build request →
// sign → call gateway → parse → classify → persist → respond. Each
// operation is a stateless invocation; the ledger and card stores are the
// only shared state.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gpcheckout.org/internal/audit"
	"gpcheckout.org/internal/cards"
	"gpcheckout.org/internal/config"
	"gpcheckout.org/internal/gateway"
	"gpcheckout.org/internal/ids"
	"gpcheckout.org/internal/ledger"
	"gpcheckout.org/internal/obs"
	"gpcheckout.org/internal/stream"
)

// UserDirectory is the slice of the user store the orchestrator needs:
// payer references live on the user record.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (User, error)
	SetPayerRef(ctx context.Context, userID, payerRef string) error
}

// User is the minimal user view required for tokenization.
type User struct {
	ID       string
	Name     string
	Email    string
	PayerRef string
}

// Service is the payment orchestrator.
type Service struct {
	api   config.APIConfig
	hpp   config.HPPConfig
	vault vaultConfig

	allowClientResult bool

	apiSigner gateway.Signer
	hppSigner gateway.Signer
	client    *gateway.Client

	ledger ledger.Store
	cards  *cards.Store
	users  UserDirectory
	events *stream.Stream

	now func() time.Time
}

type vaultConfig struct {
	enabled bool
	account string
}

// Option configures optional collaborators.
type Option func(*Service)

// WithUserDirectory enables per-user payer references for tokenization.
func WithUserDirectory(users UserDirectory) Option {
	return func(s *Service) { s.users = users }
}

// WithStream publishes a stream event for every ledger append.
func WithStream(events *stream.Stream) Option {
	return func(s *Service) { s.events = events }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds the orchestrator from the service configuration.
func New(cfg config.Config, store ledger.Store, cardStore *cards.Store, opts ...Option) *Service {
	s := &Service{
		api:               cfg.API,
		hpp:               cfg.HPP,
		vault:             vaultConfig{enabled: cfg.VaultEnabled, account: cfg.VaultAccount},
		allowClientResult: cfg.AllowClientResult,
		apiSigner:         gateway.NewSigner(cfg.API.Secret),
		hppSigner:         gateway.NewSigner(cfg.HPP.Secret),
		client:            gateway.NewClient(cfg.API.URL),
		ledger:            store,
		cards:             cardStore,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize runs a direct card payment. The outcome — approval, decline
// or transport failure — is always persisted; only the returned error
// distinguishes a transport failure (ErrGateway) from a processed
// payment.
func (s *Service) Authorize(ctx context.Context, in AuthIntent) (Result, error) {
	if err := requireFields(map[string]string{
		"amount":      in.Amount,
		"currency":    in.Currency,
		"cardNumber":  in.PAN,
		"cardHolder":  in.CardHolder,
		"expiryMonth": in.ExpiryMonth,
		"expiryYear":  in.ExpiryYear,
		"cvv":         in.CVN,
	}); err != nil {
		return Result{}, err
	}
	minor, err := minorUnits(in.Amount)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	orderID := fmt.Sprintf("API-%d", now.UnixMilli())
	timestamp := wireTimestamp(now)
	amount := strconv.FormatInt(minor, 10)

	req := gateway.AuthRequest{
		Timestamp:  timestamp,
		MerchantID: s.api.MerchantID,
		Account:    s.api.Account,
		OrderID:    orderID,
		Amount:     amount,
		Currency:   in.Currency,
		PAN:        in.PAN,
		ExpiryMMYY: in.ExpiryMonth + in.ExpiryYear,
		CardHolder: in.CardHolder,
		Brand:      gateway.InferBrand(in.PAN),
		CVN:        in.CVN,
		Hash:       s.apiSigner.SignAuth(timestamp, s.api.MerchantID, orderID, amount, in.Currency, in.PAN),
	}

	_ = audit.LogEvent(ctx, "gateway.auth", map[string]any{
		"order_id": orderID,
		"amount":   amount,
		"currency": in.Currency,
		"card":     gateway.MaskPAN(in.PAN),
	})

	resp, err := s.client.Post(ctx, "auth", req.XML())
	rec := ledger.Record{
		ID:        ids.New(),
		OrderID:   orderID,
		Timestamp: now,
		Amount:    majorUnits(minor),
		Currency:  in.Currency,
		Channel:   ledger.ChannelAPI,
		UserID:    in.UserID,
	}
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

// Refund rebates a prior successful transaction. Exactly one successful
// refund per original order is allowed; the eligibility check and the
// in-flight reservation are a single atomic step in the ledger store.
func (s *Service) Refund(ctx context.Context, in RefundIntent) (Result, error) {
	if in.OrderID == "" {
		return Result{}, fmt.Errorf("%w: orderId is required", ErrValidation)
	}

	orig, err := s.ledger.BeginRefund(ctx, in.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return Result{}, fmt.Errorf("%w: no transaction with orderId %s", ErrNotFound, in.OrderID)
		case errors.Is(err, ledger.ErrNotRefundable):
			return Result{}, fmt.Errorf("%w: original transaction was not successful", ErrInvalidState)
		case errors.Is(err, ledger.ErrAlreadyRefunded):
			return Result{}, fmt.Errorf("%w: transaction already refunded", ErrInvalidState)
		case errors.Is(err, ledger.ErrRefundInFlight):
			return Result{}, fmt.Errorf("%w: refund already in progress", ErrInvalidState)
		default:
			return Result{}, err
		}
	}

	minor := minorFromMajor(orig.Amount)
	if in.Amount != "" {
		minor, err = minorUnits(in.Amount)
		if err != nil {
			s.ledger.AbortRefund(ctx, in.OrderID)
			return Result{}, err
		}
		if majorUnits(minor) > orig.Amount {
			s.ledger.AbortRefund(ctx, in.OrderID)
			return Result{}, fmt.Errorf("%w: refund amount exceeds original amount", ErrValidation)
		}
	}

	now := s.now()
	timestamp := wireTimestamp(now)
	amount := strconv.FormatInt(minor, 10)

	req := gateway.RebateRequest{
		Timestamp:  timestamp,
		MerchantID: s.api.MerchantID,
		Account:    s.api.Account,
		OrderID:    orig.OrderID,
		Amount:     amount,
		Currency:   orig.Currency,
		PasRef:     orig.PasRef,
		AuthCode:   orig.AuthCode,
		Hash:       s.apiSigner.SignRebate(timestamp, s.api.MerchantID, orig.OrderID),
	}

	_ = audit.LogEvent(ctx, "gateway.rebate", map[string]any{
		"order_id": orig.OrderID,
		"amount":   amount,
		"currency": orig.Currency,
	})

	rec := ledger.Record{
		ID:              ids.New(),
		OrderID:         fmt.Sprintf("REFUND-%d", now.UnixMilli()),
		OriginalOrderID: orig.OrderID,
		Timestamp:       now,
		Amount:          majorUnits(minor),
		Currency:        orig.Currency,
		Channel:         ledger.ChannelRefund,
		UserID:          in.UserID,
	}

	resp, err := s.client.Post(ctx, "rebate", req.XML())
	if err != nil {
		// The failed-refund record releases the reservation, so the
		// caller may retry.
		return s.recordTransportFailure(ctx, rec, err)
	}

	rec.Success = resp.Approved()
	rec.ResultCode = resp.ResultCode
	rec.Message = resp.Message
	rec.AuthCode = resp.AuthCode
	rec.PasRef = resp.PasRef
	rec.RawResponse = resp.Raw
	s.persist(ctx, rec)

	return Result{
		Success:    rec.Success,
		ResultCode: rec.ResultCode,
		Message:    rec.Message,
		OrderID:    orig.OrderID,
		AuthCode:   rec.AuthCode,
		PasRef:     rec.PasRef,
		Amount:     rec.Amount,
		Currency:   rec.Currency,
	}, nil
}

// recordTransportFailure persists the synthetic "999" record and surfaces
// ErrGateway so the API layer can answer with a server-error status
// instead of a gateway decline.
func (s *Service) recordTransportFailure(ctx context.Context, rec ledger.Record, cause error) (Result, error) {
	rec.Success = false
	rec.ResultCode = TransportResultCode
	rec.Message = "Payment processing failed: " + cause.Error()
	s.persist(ctx, rec)

	return Result{
		Success:    false,
		ResultCode: TransportResultCode,
		Message:    rec.Message,
		OrderID:    rec.OrderID,
		Amount:     rec.Amount,
		Currency:   rec.Currency,
	}, fmt.Errorf("%w: %s", ErrGateway, cause.Error())
}

// persist appends the record, publishes a stream event, and counts the
// outcome. Ledger failures are logged, not fatal: the payment outcome has
// already been decided by the gateway.
func (s *Service) persist(ctx context.Context, rec ledger.Record) {
	if err := s.ledger.Append(ctx, rec); err != nil {
		obs.LogEvent(map[string]any{
			"level":    "error",
			"msg":      "ledger append failed",
			"order_id": rec.OrderID,
			"error":    err.Error(),
		})
	}
	if s.events != nil {
		s.events.Publish(stream.Event{
			OrderID:    rec.OrderID,
			Channel:    string(rec.Channel),
			Amount:     rec.Amount,
			Currency:   rec.Currency,
			Success:    rec.Success,
			ResultCode: rec.ResultCode,
			Timestamp:  rec.Timestamp,
		})
	}
	obs.ObservePayment(string(rec.Channel), outcomeLabel(rec))
}

func outcomeLabel(rec ledger.Record) string {
	switch {
	case rec.Success:
		return "approved"
	case rec.ResultCode == TransportResultCode:
		return "transport_error"
	default:
		return "declined"
	}
}

func requireFields(fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, name)
		}
	}
	return nil
}
