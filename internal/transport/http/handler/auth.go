package handler

import (
	"net/http"

	"github.com/shopnest-api/internal/application/auth"
	"github.com/shopnest-api/internal/pkg/validate"
)

// AuthHandler serves the two-step register and login endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !bind(w, r, &req) {
		return
	}
	sent, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeCodeSent(w, sent)
}

func (h *AuthHandler) VerifyRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyRequest
	if !bind(w, r, &req) {
		return
	}
	u, err := h.svc.VerifyRegister(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthEnvelope{
		Success: true,
		Message: "Account verified",
		User:    toSafeUser(u),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !bind(w, r, &req) {
		return
	}
	sent, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeCodeSent(w, sent)
}

func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyRequest
	if !bind(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyLogin(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Success:      true,
		Token:        res.Bearer,
		RefreshToken: res.RefreshToken,
		User:         toSafeUser(res.Session.User),
	})
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.ResendRequest
	if !bind(w, r, &req) {
		return
	}
	sent, err := h.svc.ResendOTP(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeCodeSent(w, sent)
}

// bind decodes and validates the body, writing 400 or 422 on failure.
func bind(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decode(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func writeCodeSent(w http.ResponseWriter, sent *auth.CodeSent) {
	msg := "Verification code sent via email"
	switch {
	case sent.Email && sent.SMS:
		msg = "Verification code sent via email and SMS"
	case sent.SMS:
		msg = "Verification code sent via SMS"
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Success:              true,
		Message:              msg,
		RequiresVerification: true,
		VerificationSent:     sent,
	})
}
