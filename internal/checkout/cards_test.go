package checkout

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpcheckout.org/internal/config"
	"gpcheckout.org/internal/gateway/gatewaytest"
	"gpcheckout.org/internal/ledger"
)

func validStoreCardIntent() StoreCardIntent {
	return StoreCardIntent{
		PAN:         "4263971921001307",
		CardHolder:  "Joe Bloggs",
		ExpiryMonth: "12",
		ExpiryYear:  "30",
	}
}

func TestStoreCardAnonymousIsReferenceOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	card, err := f.svc.StoreCard(ctx, validStoreCardIntent())
	require.NoError(t, err)
	assert.False(t, card.StoredInVault)
	assert.Empty(t, card.PayerRef)
	assert.Empty(t, card.CardRef)
	assert.Equal(t, "426397******1307", card.MaskedPAN)
	assert.Equal(t, "VISA", card.Brand)
	assert.NotEmpty(t, card.Token)

	assert.Equal(t, 0, f.gw.RequestCount(), "anonymous tokenization must stay local")
}

func TestStoreCardVaultsForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validStoreCardIntent()
	in.UserID = "u1"
	card, err := f.svc.StoreCard(ctx, in)
	require.NoError(t, err)
	assert.True(t, card.StoredInVault)
	assert.NotEmpty(t, card.PayerRef)
	assert.NotEmpty(t, card.CardRef)

	// payer-new, then card-new.
	reqs := f.gw.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0], `type="payer-new"`)
	assert.Contains(t, reqs[1], `type="card-new"`)

	// The payer reference is remembered on the user.
	u, err := f.users.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, card.PayerRef, u.PayerRef)

	// A second card reuses the payer: only card-new goes out.
	second, err := f.svc.StoreCard(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.StoredInVault)
	assert.Equal(t, card.PayerRef, second.PayerRef)
	assert.Equal(t, 3, f.gw.RequestCount())
}

func TestStoreCardFallsBackWhenGatewayRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.Script("payer-new", gatewaytest.Reply{ResultCode: "508", Message: "Payer setup failed"})

	in := validStoreCardIntent()
	in.UserID = "u1"
	card, err := f.svc.StoreCard(ctx, in)
	require.NoError(t, err, "vault failure degrades to reference-only storage")
	assert.False(t, card.StoredInVault)
	assert.Empty(t, card.CardRef)
}

func TestStoreCardVaultDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.VaultEnabled = false })
	ctx := context.Background()

	in := validStoreCardIntent()
	in.UserID = "u1"
	card, err := f.svc.StoreCard(ctx, in)
	require.NoError(t, err)
	assert.False(t, card.StoredInVault)
	assert.Equal(t, 0, f.gw.RequestCount())
}

func TestStoreCardValidation(t *testing.T) {
	f := newFixture(t)
	in := validStoreCardIntent()
	in.ExpiryYear = ""
	_, err := f.svc.StoreCard(context.Background(), in)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChargeStoredCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validStoreCardIntent()
	in.UserID = "u1"
	card, err := f.svc.StoreCard(ctx, in)
	require.NoError(t, err)
	require.True(t, card.StoredInVault)

	res, err := f.svc.ChargeStoredCard(ctx, ChargeIntent{
		Token:    card.Token,
		Amount:   "25.00",
		Currency: "EUR",
		UserID:   "u1",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.OrderID, "REC-"))
	assert.Equal(t, 25.00, res.Amount)

	reqs := f.gw.Requests()
	last := reqs[len(reqs)-1]
	assert.Contains(t, last, `type="receipt-in"`)
	assert.Contains(t, last, "<payerref>"+card.PayerRef+"</payerref>")
	assert.Contains(t, last, "<paymentmethod>"+card.CardRef+"</paymentmethod>")
	assert.NotContains(t, last, "<paymentdata>", "no CVN was provided")

	recs, _ := f.store.ListByChannel(ctx, ledger.ChannelStoredCard, 0)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Success)

	stored, err := f.cards.Find(ctx, card.Token)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastUsed, "a successful charge stamps lastUsed")
}

func TestChargeStoredCardWithCVN(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validStoreCardIntent()
	in.UserID = "u1"
	card, err := f.svc.StoreCard(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.ChargeStoredCard(ctx, ChargeIntent{
		Token:    card.Token,
		Amount:   "10.00",
		Currency: "EUR",
		CVN:      "123",
		UserID:   "u1",
	})
	require.NoError(t, err)

	reqs := f.gw.Requests()
	assert.Contains(t, reqs[len(reqs)-1], "<paymentdata>")
}

func TestChargeStoredCardDeclineLeavesLastUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validStoreCardIntent()
	in.UserID = "u1"
	card, err := f.svc.StoreCard(ctx, in)
	require.NoError(t, err)

	f.gw.Script("receipt-in", gatewaytest.Reply{ResultCode: "101", Message: "DECLINED"})
	res, err := f.svc.ChargeStoredCard(ctx, ChargeIntent{
		Token:    card.Token,
		Amount:   "10.00",
		Currency: "EUR",
		UserID:   "u1",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)

	stored, _ := f.cards.Find(ctx, card.Token)
	assert.Nil(t, stored.LastUsed)
}

func TestChargeReferenceOnlyCardFailsBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	card, err := f.svc.StoreCard(ctx, validStoreCardIntent())
	require.NoError(t, err)
	require.False(t, card.StoredInVault)

	before := f.gw.RequestCount()
	_, err = f.svc.ChargeStoredCard(ctx, ChargeIntent{
		Token:    card.Token,
		Amount:   "10.00",
		Currency: "EUR",
	})
	assert.ErrorIs(t, err, ErrNotSupported)
	assert.Contains(t, err.Error(), card.MaskedPAN)
	assert.Equal(t, before, f.gw.RequestCount(), "reference-only charge must not reach the gateway")
}

func TestChargeUnknownToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ChargeStoredCard(context.Background(), ChargeIntent{
		Token:    "no-such-token",
		Amount:   "10.00",
		Currency: "EUR",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChargeOtherUsersCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validStoreCardIntent()
	in.UserID = "u1"
	card, err := f.svc.StoreCard(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.ChargeStoredCard(ctx, ChargeIntent{
		Token:    card.Token,
		Amount:   "10.00",
		Currency: "EUR",
		UserID:   "someone-else",
	})
	assert.ErrorIs(t, err, ErrNotFound, "ownership mismatch reads as an unknown token")
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		in          string
		first, last string
	}{
		{"Joe Bloggs", "Joe", "Bloggs"},
		{"Joe", "Joe", ""},
		{"Joe van der Berg", "Joe", "van der Berg"},
		{"", "", ""},
	}
	for _, c := range cases {
		first, last := splitName(c.in)
		if first != c.first || last != c.last {
			t.Errorf("splitName(%q) = %q, %q", c.in, first, last)
		}
	}
}
