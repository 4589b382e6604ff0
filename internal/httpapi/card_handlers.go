package httpapi

import (
	"net/http"
	"strings"
	"time"

	"gpcheckout.org/internal/auth"
	"gpcheckout.org/internal/cards"
	"gpcheckout.org/internal/checkout"
)

type storeCardRequest struct {
	CardNumber     string `json:"cardNumber"`
	CardHolderName string `json:"cardHolderName"`
	ExpiryMonth    string `json:"expiryMonth"`
	ExpiryYear     string `json:"expiryYear"`
	CustomerEmail  string `json:"customerEmail"`
}

type chargeCardRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	CVV      string `json:"cvv"`
}

// cardView is the card representation sent to browsers: masked data only,
// no gateway references.
type cardView struct {
	Token         string     `json:"token"`
	MaskedPAN     string     `json:"maskedCardNumber"`
	Brand         string     `json:"cardBrand"`
	HolderName    string     `json:"cardHolderName"`
	ExpiryMonth   string     `json:"expiryMonth"`
	ExpiryYear    string     `json:"expiryYear"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsed      *time.Time `json:"lastUsed,omitempty"`
	StoredInVault bool       `json:"storedInVault"`
}

func viewOf(c cards.Card) cardView {
	return cardView{
		Token:         c.Token,
		MaskedPAN:     c.MaskedPAN,
		Brand:         c.Brand,
		HolderName:    c.HolderName,
		ExpiryMonth:   c.ExpiryMonth,
		ExpiryYear:    c.ExpiryYear,
		CreatedAt:     c.CreatedAt,
		LastUsed:      c.LastUsed,
		StoredInVault: c.StoredInVault,
	}
}

func viewsOf(list []cards.Card) []cardView {
	out := make([]cardView, 0, len(list))
	for _, c := range list {
		out = append(out, viewOf(c))
	}
	return out
}

func (a *API) handleCardsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID, ok := auth.UserIDFromContext(r.Context())
		var (
			list []cards.Card
			err  error
		)
		if ok {
			list, err = a.cards.ListByUser(r.Context(), userID)
		} else {
			list, err = a.cards.List(r.Context())
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "error fetching cards")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"cards":   viewsOf(list),
		})
	case http.MethodPost:
		var req storeCardRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		userID, _ := auth.UserIDFromContext(r.Context())
		card, err := a.checkout.StoreCard(r.Context(), checkout.StoreCardIntent{
			PAN:         req.CardNumber,
			CardHolder:  req.CardHolderName,
			ExpiryMonth: req.ExpiryMonth,
			ExpiryYear:  req.ExpiryYear,
			Email:       req.CustomerEmail,
			UserID:      userID,
		})
		if err != nil {
			writeError(w, errorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"card":    viewOf(card),
		})
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (a *API) handleCardResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/cards/")
	if path == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	if token, ok := strings.CutSuffix(path, "/charge"); ok {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		a.chargeCard(w, r, strings.TrimSuffix(token, "/"))
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := a.cards.Delete(r.Context(), path); err != nil {
			writeError(w, http.StatusNotFound, "unknown card token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		methodNotAllowed(w, http.MethodDelete)
	}
}

func (a *API) chargeCard(w http.ResponseWriter, r *http.Request, token string) {
	var req chargeCardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	res, err := a.checkout.ChargeStoredCard(r.Context(), checkout.ChargeIntent{
		Token:    token,
		Amount:   req.Amount,
		Currency: req.Currency,
		CVN:      req.CVV,
		UserID:   userID,
	})
	a.writePaymentResult(w, res, err)
}
