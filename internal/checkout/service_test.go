package checkout

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpcheckout.org/internal/cards"
	"gpcheckout.org/internal/config"
	"gpcheckout.org/internal/gateway/gatewaytest"
	"gpcheckout.org/internal/ledger"
)

const (
	testMerchantID = "demo-merchant"
	testAPISecret  = "api-secret"
	testHPPSecret  = "hpp-secret"
)

// steppingClock hands out strictly increasing timestamps so order ids
// derived from UnixMilli never collide within a test.
type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// memoryDirectory is an in-test UserDirectory.
type memoryDirectory struct {
	mu    sync.Mutex
	users map[string]User
}

func newMemoryDirectory(users ...User) *memoryDirectory {
	d := &memoryDirectory{users: make(map[string]User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *memoryDirectory) FindByID(ctx context.Context, id string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (d *memoryDirectory) SetPayerRef(ctx context.Context, userID, payerRef string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PayerRef = payerRef
	d.users[userID] = u
	return nil
}

type fixture struct {
	svc    *Service
	gw     *gatewaytest.Server
	store  *ledger.InMemory
	cards  *cards.Store
	users  *memoryDirectory
	config config.Config
}

func newFixture(t *testing.T, opts ...func(*config.Config)) *fixture {
	t.Helper()

	gw := gatewaytest.New(testMerchantID, testAPISecret)
	t.Cleanup(gw.Close)

	cfg := config.Config{
		API: config.APIConfig{
			MerchantID: testMerchantID,
			Account:    "internet",
			Secret:     testAPISecret,
			URL:        gw.URL,
		},
		HPP: config.HPPConfig{
			MerchantID:  testMerchantID,
			Account:     "internet",
			Secret:      testHPPSecret,
			URL:         "https://hpp.example.test/pay",
			ResponseURL: "https://shop.example.test/v1/hpp/response",
		},
		VaultEnabled: true,
		VaultAccount: "internet",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := ledger.NewInMemory()
	cardStore, err := cards.NewStore("")
	require.NoError(t, err)
	users := newMemoryDirectory(User{ID: "u1", Name: "Joe Bloggs", Email: "joe@example.com"})

	clk := &steppingClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := New(cfg, store, cardStore,
		WithUserDirectory(users),
		WithClock(clk.now),
	)
	return &fixture{svc: svc, gw: gw, store: store, cards: cardStore, users: users, config: cfg}
}

func validAuthIntent() AuthIntent {
	return AuthIntent{
		Amount:      "12.34",
		Currency:    "EUR",
		PAN:         "4263971921001307",
		CardHolder:  "Joe Bloggs",
		ExpiryMonth: "12",
		ExpiryYear:  "30",
		CVN:         "123",
	}
}

func TestAuthorizeApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Authorize(ctx, validAuthIntent())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "00", res.ResultCode)
	assert.Equal(t, "12345", res.AuthCode)
	assert.Equal(t, 12.34, res.Amount)
	assert.Equal(t, "EUR", res.Currency)
	assert.True(t, strings.HasPrefix(res.OrderID, "API-"), "orderID = %s", res.OrderID)

	// The fake gateway rejects bad signatures with 505, so approval here
	// proves the auth hash was computed over the right fields.
	recs, err := f.store.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ledger.ChannelAPI, recs[0].Channel)
	assert.True(t, recs[0].Success)
	assert.Equal(t, res.OrderID, recs[0].OrderID)
	assert.Equal(t, "pas-"+res.OrderID, recs[0].PasRef)
	assert.NotEmpty(t, recs[0].RawResponse)
}

func TestAuthorizeDeclined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.Script("auth", gatewaytest.Reply{ResultCode: "101", Message: "DECLINED"})

	res, err := f.svc.Authorize(ctx, validAuthIntent())
	require.NoError(t, err, "a decline is a processed payment, not an error")
	assert.False(t, res.Success)
	assert.Equal(t, "101", res.ResultCode)
	assert.Equal(t, "DECLINED", res.Message)

	recs, _ := f.store.ListRecent(ctx, 0)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Success)
	assert.Equal(t, "101", recs[0].ResultCode)
}

func TestAuthorizeTransportFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.Close()

	res, err := f.svc.Authorize(ctx, validAuthIntent())
	require.ErrorIs(t, err, ErrGateway)
	assert.False(t, res.Success)
	assert.Equal(t, TransportResultCode, res.ResultCode)
	assert.Contains(t, res.Message, "Payment processing failed")

	// The failure is still on the books.
	recs, _ := f.store.ListRecent(ctx, 0)
	require.Len(t, recs, 1)
	assert.Equal(t, TransportResultCode, recs[0].ResultCode)
	assert.Equal(t, ledger.ChannelAPI, recs[0].Channel)
}

func TestAuthorizeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := validAuthIntent()
	missing.PAN = ""
	_, err := f.svc.Authorize(ctx, missing)
	assert.ErrorIs(t, err, ErrValidation)

	badAmount := validAuthIntent()
	badAmount.Amount = "12.345"
	_, err = f.svc.Authorize(ctx, badAmount)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 0, f.gw.RequestCount(), "validation failures must not reach the gateway")
	recs, _ := f.store.ListRecent(ctx, 0)
	assert.Empty(t, recs, "validation failures are not ledger events")
}

func TestRefundFullAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auth, err := f.svc.Authorize(ctx, validAuthIntent())
	require.NoError(t, err)

	res, err := f.svc.Refund(ctx, RefundIntent{OrderID: auth.OrderID})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 12.34, res.Amount)
	assert.Equal(t, auth.OrderID, res.OrderID)

	recs, _ := f.store.ListByChannel(ctx, ledger.ChannelRefund, 0)
	require.Len(t, recs, 1)
	assert.True(t, strings.HasPrefix(recs[0].OrderID, "REFUND-"))
	assert.Equal(t, auth.OrderID, recs[0].OriginalOrderID)
}

func TestRefundPartialAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auth, err := f.svc.Authorize(ctx, validAuthIntent())
	require.NoError(t, err)

	res, err := f.svc.Refund(ctx, RefundIntent{OrderID: auth.OrderID, Amount: "5.00"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 5.00, res.Amount)
}

func TestRefundOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auth, err := f.svc.Authorize(ctx, validAuthIntent())
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, RefundIntent{OrderID: auth.OrderID})
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, RefundIntent{OrderID: auth.OrderID})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRefundUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Refund(context.Background(), RefundIntent{OrderID: "API-404"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefundDeclinedOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.Script("auth", gatewaytest.Reply{ResultCode: "101", Message: "DECLINED"})

	auth, err := f.svc.Authorize(ctx, validAuthIntent())
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, RefundIntent{OrderID: auth.OrderID})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRefundAmountExceedsOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auth, err := f.svc.Authorize(ctx, validAuthIntent())
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, RefundIntent{OrderID: auth.OrderID, Amount: "99.99"})
	assert.ErrorIs(t, err, ErrValidation)

	// The rejected attempt released its reservation.
	res, err := f.svc.Refund(ctx, RefundIntent{OrderID: auth.OrderID, Amount: "12.34"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRefundFailedAttemptAllowsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auth, err := f.svc.Authorize(ctx, validAuthIntent())
	require.NoError(t, err)

	f.gw.Script("rebate", gatewaytest.Reply{ResultCode: "508", Message: "Gateway timeout simulated"})
	res, err := f.svc.Refund(ctx, RefundIntent{OrderID: auth.OrderID})
	require.NoError(t, err)
	assert.False(t, res.Success, "scripted 508 is a processed decline")

	// The failed refund record released the reservation; a retry works.
	f.gw.Script("rebate", gatewaytest.Reply{ResultCode: "00", Message: "REBATE ACCEPTED", AuthCode: "54321", PasRef: "pas-rebate"})
	res, err = f.svc.Refund(ctx, RefundIntent{OrderID: auth.OrderID})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
