package tenant

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/domain"
)

// MemberResponse is one row of the team list.
type MemberResponse struct {
	ID     uuid.UUID               `json:"id"`
	UserID uuid.UUID               `json:"user_id"`
	Email  string                  `json:"email"`
	Name   string                  `json:"name,omitempty"`
	Role   domain.Role             `json:"role"`
	Status domain.MembershipStatus `json:"status"`
}

// InvitationResponse describes a pending invitation.
type InvitationResponse struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	ExpiresAt time.Time   `json:"expires_at"`
	// Link is only returned when the invitation is created.
	Link string `json:"link,omitempty"`
}

// InviteRequest invites someone by email.
type InviteRequest struct {
	Email string `json:"email" validate:"required"`
	Role  string `json:"role" validate:"required,oneof=manager worker"`
}

// UpdateMemberRequest changes a member's role.
type UpdateMemberRequest struct {
	Role string `json:"role" validate:"required,oneof=manager worker"`
}

// ListMembers returns the team and its pending invitations.
// GET /team/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	members, err := h.tenancy.ListMembers(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	invitations, err := h.tenancy.PendingInvitations(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := struct {
		Members     []MemberResponse     `json:"members"`
		Invitations []InvitationResponse `json:"invitations"`
	}{
		Members:     make([]MemberResponse, 0, len(members)),
		Invitations: make([]InvitationResponse, 0, len(invitations)),
	}
	for _, m := range members {
		mr := MemberResponse{
			ID:     m.Membership.ID,
			UserID: m.Membership.UserID,
			Email:  m.Email,
			Role:   m.Membership.Role,
			Status: m.Membership.Status,
		}
		if m.Name != nil {
			mr.Name = *m.Name
		}
		resp.Members = append(resp.Members, mr)
	}
	for _, inv := range invitations {
		resp.Invitations = append(resp.Invitations, InvitationResponse{
			ID:        inv.ID,
			Email:     inv.Email,
			Role:      inv.Role,
			ExpiresAt: inv.ExpiresAt,
		})
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Invite creates an invitation.
// POST /team/invitations
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req InviteRequest
	if !h.decode(w, r, &req) {
		return
	}

	inv, token, err := h.tenancy.Invite(r.Context(), actor, req.Email, domain.Role(req.Role))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, InvitationResponse{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      inv.Role,
		ExpiresAt: inv.ExpiresAt,
		Link:      "/invite/" + token,
	})
}

// UpdateMember changes a member's role.
// PATCH /team/members/{id}
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	memberID, ok := memberIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateMemberRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.tenancy.ChangeRole(r.Context(), actor, memberID, domain.Role(req.Role)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeactivateMember removes a member's access.
// DELETE /team/members/{id}
func (h *Handler) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	memberID, ok := memberIDParam(w, r)
	if !ok {
		return
	}

	if err := h.tenancy.DeactivateMember(r.Context(), actor, memberID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func memberIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid member id")
		return uuid.Nil, false
	}
	return id, true
}
