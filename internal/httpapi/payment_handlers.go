package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"gpcheckout.org/internal/auth"
	"gpcheckout.org/internal/checkout"
	"gpcheckout.org/internal/ledger"
)

type paymentRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	CardNumber     string `json:"cardNumber"`
	CardHolderName string `json:"cardHolderName"`
	ExpiryMonth    string `json:"expiryMonth"`
	ExpiryYear     string `json:"expiryYear"`
	CVV            string `json:"cvv"`
}

type refundRequest struct {
	OrderID string `json:"orderId"`
	Amount  string `json:"amount"`
}

func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	res, err := a.checkout.Authorize(r.Context(), checkout.AuthIntent{
		Amount:      req.Amount,
		Currency:    req.Currency,
		PAN:         req.CardNumber,
		CardHolder:  req.CardHolderName,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		CVN:         req.CVV,
		UserID:      userID,
	})
	a.writePaymentResult(w, res, err)
}

func (a *API) handleRefunds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	res, err := a.checkout.Refund(r.Context(), checkout.RefundIntent{
		OrderID: req.OrderID,
		Amount:  req.Amount,
		UserID:  userID,
	})
	a.writePaymentResult(w, res, err)
}

// writePaymentResult renders an orchestrator outcome. A transport failure
// carries a usable Result (success=false, resultCode "999") but answers
// with a gateway-error status so callers can tell it from a decline.
func (a *API) writePaymentResult(w http.ResponseWriter, res checkout.Result, err error) {
	if err != nil {
		if errors.Is(err, checkout.ErrGateway) {
			writeJSON(w, http.StatusBadGateway, res)
			return
		}
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	records, err := a.ledger.ListRecent(r.Context(), queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error fetching transactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"transactions": records,
	})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > ledger.MaxRecords {
		return fallback
	}
	return n
}
