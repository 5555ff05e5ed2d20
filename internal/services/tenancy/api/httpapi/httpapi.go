// Package httpapi exposes the coordinator's JSON API: invite workflow
// endpoints plus the tenant ticket submission surface.
package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/upkeephq/upkeep/internal/platform/authtoken"
	apperrors "github.com/upkeephq/upkeep/internal/platform/errors"
	"github.com/upkeephq/upkeep/internal/platform/httpx"
	"github.com/upkeephq/upkeep/internal/platform/requestctx"
	maintenancedomain "github.com/upkeephq/upkeep/internal/services/maintenance/domain"
	maintenancestorage "github.com/upkeephq/upkeep/internal/services/maintenance/storage"
	tenancydomain "github.com/upkeephq/upkeep/internal/services/tenancy/domain"
)

// Handler serves the coordinator JSON API.
type Handler struct {
	tenancy   *tenancydomain.Service
	tickets   maintenancestorage.TicketStore
	tokenCfg  authtoken.Config
	clock     func() time.Time
	generator func() (string, error)
}

// New builds an API handler. clock and generator are optional and default to
// time.Now and the platform id generator.
func New(tenancy *tenancydomain.Service, tickets maintenancestorage.TicketStore, tokenCfg authtoken.Config, clock func() time.Time, generator func() (string, error)) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{
		tenancy:   tenancy,
		tickets:   tickets,
		tokenCfg:  tokenCfg,
		clock:     clock,
		generator: generator,
	}
}

// Routes returns the API route table. Every /api route requires a bearer
// token; /healthz does not.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.Handle("POST /api/invites", h.authenticated(h.handleSendInvite))
	mux.Handle("GET /api/invites", h.authenticated(h.handleListInvites))
	mux.Handle("POST /api/invites/{id}/accept", h.authenticated(h.handleAcceptInvite))
	mux.Handle("POST /api/invites/{id}/reject", h.authenticated(h.handleRejectInvite))
	mux.Handle("POST /api/tickets", h.authenticated(h.handleCreateTicket))
	mux.Handle("GET /api/tickets/{id}", h.authenticated(h.handleGetTicket))
	return mux
}

// authenticated verifies the bearer token and stores the caller identity on
// the request context.
func (h *Handler) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httpx.WriteError(w, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required"))
			return
		}
		claims, err := authtoken.Verify(strings.TrimSpace(token), h.tokenCfg)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		ctx := requestctx.WithIdentity(r.Context(), requestctx.Identity{
			UserID: claims.UserID,
			Email:  claims.Email,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendInviteRequest struct {
	PropertyID  string `json:"propertyId"`
	TenantEmail string `json:"tenantEmail"`
	Unit        string `json:"unit"`
}

type inviteResponse struct {
	ID           string `json:"id"`
	LandlordID   string `json:"landlordId"`
	LandlordName string `json:"landlordName"`
	PropertyID   string `json:"propertyId"`
	PropertyName string `json:"propertyName"`
	TenantEmail  string `json:"tenantEmail"`
	Unit         string `json:"unit,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt"`
	AcceptedAt   string `json:"acceptedAt,omitempty"`
	RejectedAt   string `json:"rejectedAt,omitempty"`
}

func (h *Handler) handleSendInvite(w http.ResponseWriter, r *http.Request) {
	var req sendInviteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	invite, err := h.tenancy.SendInvite(r.Context(), tenancydomain.SendInviteInput{
		PropertyID:  req.PropertyID,
		TenantEmail: req.TenantEmail,
		Unit:        req.Unit,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, inviteToResponse(invite))
}

func (h *Handler) handleListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.tenancy.ListInvites(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	responses := make([]inviteResponse, 0, len(invites))
	for _, invite := range invites {
		responses = append(responses, inviteToResponse(invite))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"invites": responses})
}

func (h *Handler) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	invite, err := h.tenancy.AcceptInvite(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inviteToResponse(invite))
}

func (h *Handler) handleRejectInvite(w http.ResponseWriter, r *http.Request) {
	invite, err := h.tenancy.RejectInvite(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inviteToResponse(invite))
}

type createTicketRequest struct {
	PropertyID  string `json:"propertyId"`
	IssueTitle  string `json:"issueTitle"`
	Description string `json:"description"`
}

type ticketResponse struct {
	ID                  string `json:"id"`
	TenantID            string `json:"tenantId,omitempty"`
	PropertyID          string `json:"propertyId,omitempty"`
	IssueTitle          string `json:"issueTitle,omitempty"`
	Description         string `json:"description"`
	Category            string `json:"category,omitempty"`
	Urgency             int    `json:"urgency,omitempty"`
	Status              string `json:"status"`
	ClassificationError string `json:"classificationError,omitempty"`
	CreatedAt           string `json:"createdAt"`
	ClassifiedAt        string `json:"classifiedAt,omitempty"`
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	identity, _ := requestctx.IdentityFromContext(r.Context())
	var req createTicketRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	ticket, err := maintenancedomain.NewTicket(maintenancedomain.CreateTicketInput{
		TenantID:    identity.UserID,
		PropertyID:  req.PropertyID,
		IssueTitle:  req.IssueTitle,
		Description: req.Description,
	}, h.clock, h.generator)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	record := maintenancestorage.TicketRecord{
		ID:          ticket.ID,
		TenantID:    ticket.TenantID,
		PropertyID:  ticket.PropertyID,
		IssueTitle:  ticket.IssueTitle,
		Description: ticket.Description,
		Status:      maintenancestorage.TicketStatusPendingClassification,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
	if err := h.tickets.PutTicket(r.Context(), record); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, ticketToResponse(record))
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	record, err := h.tickets.GetTicket(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, maintenancestorage.ErrNotFound) {
			httpx.WriteError(w, apperrors.New(apperrors.CodeNotFound, "ticket not found"))
			return
		}
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ticketToResponse(record))
}

func inviteToResponse(invite tenancydomain.Invite) inviteResponse {
	resp := inviteResponse{
		ID:           invite.ID,
		LandlordID:   invite.LandlordID,
		LandlordName: invite.LandlordName,
		PropertyID:   invite.PropertyID,
		PropertyName: invite.PropertyName,
		TenantEmail:  invite.TenantEmail,
		Unit:         invite.Unit,
		Status:       string(invite.Status),
		CreatedAt:    invite.CreatedAt.Format(time.RFC3339),
	}
	if invite.AcceptedAt != nil {
		resp.AcceptedAt = invite.AcceptedAt.Format(time.RFC3339)
	}
	if invite.RejectedAt != nil {
		resp.RejectedAt = invite.RejectedAt.Format(time.RFC3339)
	}
	return resp
}

func ticketToResponse(record maintenancestorage.TicketRecord) ticketResponse {
	resp := ticketResponse{
		ID:                  record.ID,
		TenantID:            record.TenantID,
		PropertyID:          record.PropertyID,
		IssueTitle:          record.IssueTitle,
		Description:         record.Description,
		Category:            record.Category,
		Urgency:             record.Urgency,
		Status:              string(record.Status),
		ClassificationError: record.ClassificationError,
		CreatedAt:           record.CreatedAt.Format(time.RFC3339),
	}
	if record.ClassifiedAt != nil {
		resp.ClassifiedAt = record.ClassifiedAt.Format(time.RFC3339)
	}
	return resp
}
