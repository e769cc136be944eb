package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/twclinics/groupbook/libs/auth"
	"github.com/twclinics/groupbook/services/bookbot/internal/authz"
	"github.com/twclinics/groupbook/services/bookbot/internal/model"
	"github.com/twclinics/groupbook/services/bookbot/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// StaffActions is the slice of the orchestrator behind the admin
// lifecycle endpoints.
type StaffActions interface {
	StaffConfirm(ctx context.Context, id int64) (model.Appointment, error)
	StaffCancel(ctx context.Context, id int64) (model.Appointment, error)
	StaffComplete(ctx context.Context, id int64) (model.Appointment, error)
	StaffDelete(ctx context.Context, id int64) error
}

// AppointmentReader serves the admin read views.
type AppointmentReader interface {
	GetByID(ctx context.Context, id int64) (model.Appointment, error)
	ListByClinic(ctx context.Context, clinicID int64, status model.Status, limit, offset int) ([]model.Appointment, error)
	CountByStatus(ctx context.Context, clinicID int64) (map[model.Status]int, error)
}

type AdminHandler struct {
	actions   StaffActions
	appts     AppointmentReader
	staff     *storage.StaffRepository
	gate      *authz.PGGate
	logger    *slog.Logger
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAdminHandler(actions StaffActions, appts AppointmentReader, staff *storage.StaffRepository, gate *authz.PGGate, logger *slog.Logger, jwtSecret string, tokenTTL time.Duration) *AdminHandler {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &AdminHandler{
		actions:   actions,
		appts:     appts,
		staff:     staff,
		gate:      gate,
		logger:    logger,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.staff.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:      user.ID,
		ClinicID: user.ClinicID,
		Role:     user.Role,
		Iat:      now.Unix(),
		Exp:      now.Add(h.tokenTTL).Unix(),
	}, h.jwtSecret)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(loginResponse{AccessToken: token, TokenType: "Bearer"})
}

// authorize parses the Bearer token and returns the staff claims, or
// writes the 401 itself and returns nil.
func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) *auth.Claims {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") || len(strings.TrimSpace(header)) <= len("Bearer ") {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return nil
	}
	claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), h.jwtSecret)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil
	}
	return claims
}

type staffActionRequest struct {
	AppointmentID int64 `json:"appointment_id"`
}

// action wraps the shared shape of the four lifecycle endpoints: parse,
// authorize, check the appointment belongs to the caller's clinic, act.
func (h *AdminHandler) action(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, id int64) (model.Appointment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := h.authorize(w, r)
	if claims == nil {
		return
	}

	var req staffActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID <= 0 {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	existing, err := h.appts.GetByID(ctx, req.AppointmentID)
	if err != nil || existing.ClinicID != claims.ClinicID {
		// Cross-clinic ids look identical to unknown ids.
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}

	appt, err := run(ctx, req.AppointmentID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrInvalidTransition):
			http.Error(w, "invalid status transition", http.StatusConflict)
		default:
			h.logger.Error("staff action failed", "appointment_id", req.AppointmentID, "err", err)
			http.Error(w, "action failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toItem(appt))
}

func (h *AdminHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, id int64) (model.Appointment, error) {
		return h.actions.StaffConfirm(ctx, id)
	})
}

func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, id int64) (model.Appointment, error) {
		return h.actions.StaffCancel(ctx, id)
	})
}

func (h *AdminHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, id int64) (model.Appointment, error) {
		return h.actions.StaffComplete(ctx, id)
	})
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := h.authorize(w, r)
	if claims == nil {
		return
	}

	var req staffActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID <= 0 {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	existing, err := h.appts.GetByID(ctx, req.AppointmentID)
	if err != nil || existing.ClinicID != claims.ClinicID {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}

	if err := h.actions.StaffDelete(ctx, req.AppointmentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("staff delete failed", "appointment_id", req.AppointmentID, "err", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := h.authorize(w, r)
	if claims == nil {
		return
	}

	q := r.URL.Query()
	status := model.Status(strings.TrimSpace(q.Get("status")))
	if status != "" && !model.ValidStatus(status) {
		http.Error(w, "invalid status filter", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	appts, err := h.appts.ListByClinic(r.Context(), claims.ClinicID, status, limit, offset)
	if err != nil {
		h.logger.Error("admin list failed", "clinic_id", claims.ClinicID, "err", err)
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"appointments": items})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := h.authorize(w, r)
	if claims == nil {
		return
	}

	counts, err := h.appts.CountByStatus(r.Context(), claims.ClinicID)
	if err != nil {
		h.logger.Error("admin stats failed", "clinic_id", claims.ClinicID, "err", err)
		http.Error(w, "stats failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"pending":   counts[model.StatusPending],
		"confirmed": counts[model.StatusConfirmed],
		"cancelled": counts[model.StatusCancelled],
		"completed": counts[model.StatusCompleted],
	})
}

type groupRequest struct {
	GroupID string `json:"group_id"`
}

func (h *AdminHandler) AuthorizeGroup(w http.ResponseWriter, r *http.Request) {
	h.groupAction(w, r, h.gate.Authorize)
}

func (h *AdminHandler) RevokeGroup(w http.ResponseWriter, r *http.Request) {
	h.groupAction(w, r, h.gate.Revoke)
}

func (h *AdminHandler) groupAction(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, clinicID int64, groupID string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := h.authorize(w, r)
	if claims == nil {
		return
	}

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.GroupID = strings.TrimSpace(req.GroupID)
	if req.GroupID == "" {
		http.Error(w, "group_id required", http.StatusBadRequest)
		return
	}

	if err := run(r.Context(), claims.ClinicID, req.GroupID); err != nil {
		h.logger.Error("group authorization update failed", "group_id", req.GroupID, "err", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
