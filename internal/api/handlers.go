package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"fissler.com/cooker-assistant/internal/auth"
	"fissler.com/cooker-assistant/internal/core"
)

type contextKey string

const sessionIDKey contextKey = "sessionID"

// Registrar is the registration entry point used by the registration API.
type Registrar interface {
	RegisterCustomer(ctx context.Context, req core.CustomerRegistration) (int64, error)
}

type APIHandler struct {
	chatService   *core.ChatService
	registrar     Registrar
	sessionSecret string
}

func NewAPIHandler(cs *core.ChatService, registrar Registrar, sessionSecret string) *APIHandler {
	return &APIHandler{chatService: cs, registrar: registrar, sessionSecret: sessionSecret}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("failed to write response")
	}
}

type errorResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Status: "error", Detail: detail})
}

// SessionAuthMiddleware resolves the bearer token to a live chat session.
func (h *APIHandler) SessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		sessionID, err := auth.ValidateSessionToken(h.sessionSecret, tokenString)
		if err != nil {
			log.WithError(err).Debug("rejected session token")
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		if _, err := h.chatService.Sessions().Get(sessionID); err != nil {
			writeError(w, http.StatusUnauthorized, "session has ended")
			return
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type RegisterRequest struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	ProductModel string `json:"product_model"`
	PurchaseDate string `json:"purchase_date,omitempty"`
}

type RegisterResponse struct {
	Status string `json:"status"`
	UserID string `json:"user_id"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := h.registrar.RegisterCustomer(r.Context(), core.CustomerRegistration{
		FullName:     req.FullName,
		Email:        req.Email,
		ProductModel: req.ProductModel,
		PurchaseDate: req.PurchaseDate,
	})
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.WithError(err).WithField("email", req.Email).Error("registration failed")
		writeError(w, http.StatusInternalServerError, "registration could not be completed")
		return
	}

	log.WithField("user_id", userID).Info("customer registered")
	writeJSON(w, http.StatusOK, RegisterResponse{Status: "success", UserID: strconv.FormatInt(userID, 10)})
}

type CreateSessionResponse struct {
	Token         string `json:"token"`
	Greeting      string `json:"greeting"`
	UserName      string `json:"user_name"`
	ProductModel  string `json:"product_model"`
	ProductFamily string `json:"product_family"`
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	rawUserID := core.ResolveUserID(r.URL.Query().Get("user_id"), r.Referer())
	start := h.chatService.StartSession(r.Context(), rawUserID)

	token, err := auth.GenerateSessionToken(h.sessionSecret, start.Session.ID)
	if err != nil {
		log.WithError(err).Error("failed to sign session token")
		if endErr := h.chatService.EndSession(start.Session.ID); endErr != nil {
			log.WithError(endErr).Debug("failed to discard session")
		}
		writeError(w, http.StatusInternalServerError, "session could not be started")
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		Token:         token,
		Greeting:      start.Greeting,
		UserName:      start.UserName,
		ProductModel:  start.ProductModel,
		ProductFamily: start.Family.String(),
	})
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type PostMessageResponse struct {
	Reply string `json:"reply"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Context().Value(sessionIDKey).(string)

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "message content cannot be empty")
		return
	}

	reply, err := h.chatService.PostMessage(r.Context(), sessionID, req.Content)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			writeError(w, http.StatusUnauthorized, "session has ended")
			return
		}
		log.WithError(err).WithField("session", sessionID).Error("failed to post message")
		writeError(w, http.StatusInternalServerError, "message could not be processed")
		return
	}
	writeJSON(w, http.StatusOK, PostMessageResponse{Reply: reply})
}

func (h *APIHandler) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Context().Value(sessionIDKey).(string)
	if err := h.chatService.EndSession(sessionID); err != nil {
		writeError(w, http.StatusUnauthorized, "session has ended")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
