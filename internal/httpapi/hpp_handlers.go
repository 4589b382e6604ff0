package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gpcheckout.org/internal/auth"
	"gpcheckout.org/internal/checkout"
	"gpcheckout.org/internal/ledger"
)

type hppTokenRequest struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customerEmail"`
}

func (a *API) handleHPPToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req hppTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	payload, err := a.checkout.HPPRequest(r.Context(), checkout.HPPIntent{
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		UserID:        userID,
	})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"hppUrl":  payload.URL,
		"hppData": payload.Fields,
	})
}

// handleHPPResponse accepts both delivery paths for a hosted-page result:
// the gateway's own form POST to the merchant response URL, and the
// client-side relay which posts the same field names as JSON. The form
// path answers with a redirect to the result view; the JSON path answers
// with the result body.
func (a *API) handleHPPResponse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var (
		in     checkout.HPPResponse
		asJSON bool
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		asJSON = true
		var body map[string]string
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		in = hppResponseFromValues(func(key string) string { return body[key] })
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		in = hppResponseFromValues(r.PostForm.Get)
	}
	in.UserID, _ = auth.UserIDFromContext(r.Context())

	res, err := a.checkout.HandleHPPResponse(r.Context(), in)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	if asJSON {
		writeJSON(w, http.StatusOK, res)
		return
	}

	// Hand off to the result view with the decoded fields plus the
	// validity flag, mirroring the legacy redirect contract.
	q := url.Values{}
	q.Set("result", res.ResultCode)
	q.Set("message", res.Message)
	q.Set("orderId", res.OrderID)
	q.Set("authCode", res.AuthCode)
	q.Set("pasRef", res.PasRef)
	q.Set("amount", strconv.FormatFloat(res.Amount, 'f', 2, 64))
	q.Set("currency", res.Currency)
	q.Set("valid", strconv.FormatBool(res.SignatureValid != nil && *res.SignatureValid))
	http.Redirect(w, r, "/hpp-result.html?"+q.Encode(), http.StatusSeeOther)
}

func hppResponseFromValues(get func(string) string) checkout.HPPResponse {
	return checkout.HPPResponse{
		Result:     get("RESULT"),
		Message:    get("MESSAGE"),
		OrderID:    get("ORDER_ID"),
		PasRef:     get("PASREF"),
		AuthCode:   get("AUTHCODE"),
		SHA1Hash:   get("SHA1HASH"),
		Amount:     get("AMOUNT"),
		Currency:   get("CURRENCY"),
		Timestamp:  get("TIMESTAMP"),
		MerchantID: get("MERCHANT_ID"),
	}
}

func (a *API) handleHPPTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := a.ledger.ListByChannel(r.Context(), ledger.ChannelHPP, queryLimit(r, 50))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "error fetching transactions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"transactions": records,
		})
	case http.MethodDelete:
		if err := a.ledger.ClearChannel(r.Context(), ledger.ChannelHPP); err != nil {
			writeError(w, http.StatusInternalServerError, "error clearing transactions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		methodNotAllowed(w, "GET, DELETE")
	}
}
