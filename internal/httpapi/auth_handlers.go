package httpapi

import (
	"net/http"
	"time"

	"gpcheckout.org/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userView hides the password hash and the gateway payer reference.
type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func userViewOf(u auth.User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := a.auth.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    userViewOf(u),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, token, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, errorStatus(err), "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user":    userViewOf(u),
	})
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	u, err := a.auth.Users().FindByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userViewOf(u),
	})
}

func (a *API) handleUserTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	records, err := a.ledger.ListByUser(r.Context(), userID, queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error fetching transactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"transactions": records,
	})
}

func (a *API) handleUserCards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	list, err := a.cards.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error fetching cards")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cards":   viewsOf(list),
	})
}
