package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// SplitService is the split surface used by SplitHandler.
type SplitService interface {
	CreateSplit(ctx context.Context, input usecase.CreateSplitInput) (*domain.Split, error)
	GetSplit(ctx context.Context, id string) (*domain.Split, error)
	ListSplits(ctx context.Context, filter domain.SplitFilter) ([]*domain.Split, error)
	UpdateSplit(ctx context.Context, input usecase.UpdateSplitInput) (*domain.Split, error)
	DeleteSplit(ctx context.Context, id string) error
	AddParticipant(ctx context.Context, input usecase.AddParticipantInput) (*domain.Split, error)
	RemoveParticipant(ctx context.Context, splitID, entityID string) (*domain.Split, error)
	PerformSplit(ctx context.Context, id, actorEntityID string) (*domain.Split, error)
}

// SplitHandler handles split requests.
type SplitHandler struct {
	splits       SplitService
	defaultActor string
}

// NewSplitHandler creates a new SplitHandler.
func NewSplitHandler(splits SplitService, defaultActor string) *SplitHandler {
	return &SplitHandler{splits: splits, defaultActor: defaultActor}
}

// Create records a new split.
func (h *SplitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSplitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.splits.CreateSplit(r.Context(), req.ToUseCaseInput(actorOrDefault(r, h.defaultActor)))
	if err != nil {
		writeDomainError(w, "failed to create split", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.SplitFromDomain(s))
}

// Get retrieves a split by ID.
func (h *SplitHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.splits.GetSplit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get split", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SplitFromDomain(s))
}

// List lists splits matching the query filters.
func (h *SplitHandler) List(w http.ResponseWriter, r *http.Request) {
	performed, err := parseBoolQuery(r, "performed")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid performed flag", err.Error())
		return
	}

	q := r.URL.Query()
	filter := domain.SplitFilter{
		ActorEntityID:       q.Get("actor_entity_id"),
		RecipientEntityID:   q.Get("recipient_entity_id"),
		ParticipantEntityID: q.Get("participant_entity_id"),
		Currency:            q.Get("currency"),
		Performed:           performed,
		Limit:               parseIntQuery(r, "limit", 100),
		Offset:              parseIntQuery(r, "offset", 0),
	}

	splits, err := h.splits.ListSplits(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "failed to list splits", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SplitsFromDomain(splits))
}

// Update applies a partial update to an unperformed split.
func (h *SplitHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateSplitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.splits.UpdateSplit(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "failed to update split", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SplitFromDomain(s))
}

// Delete removes an unperformed split.
func (h *SplitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.splits.DeleteSplit(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "failed to delete split", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddParticipant adds an entity, or every entity with a tag, to a split.
func (h *SplitHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req dto.AddParticipantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.splits.AddParticipant(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "failed to add participant", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SplitFromDomain(s))
}

// RemoveParticipant removes an entity from a split.
func (h *SplitHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	s, err := h.splits.RemoveParticipant(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entityID"))
	if err != nil {
		writeDomainError(w, "failed to remove participant", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SplitFromDomain(s))
}

// Perform charges every participant their share in one unit of work.
func (h *SplitHandler) Perform(w http.ResponseWriter, r *http.Request) {
	s, err := h.splits.PerformSplit(r.Context(), chi.URLParam(r, "id"), actorOrDefault(r, h.defaultActor))
	if err != nil {
		writeDomainError(w, "failed to perform split", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SplitFromDomain(s))
}
