package studios

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"
	"github.com/pilatesloop/backend/pkg"
)

type studiosRepo interface {
	Add(ctx context.Context, studio Studio) (*Studio, error)
	Update(ctx context.Context, studio *Studio) error
	Get(ctx context.Context, id int) (*Studio, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, city string) ([]Studio, error)
}

type DeleteStudioResponse struct {
	DeletedID int `json:"deletedId"`
}

type UpdateStudioResponse struct {
	UpdatedID int `json:"updatedId"`
}

type ListResponse struct {
	Studios []Studio `json:"studios"`
	Total   int      `json:"total"`
}

type Handler struct {
	repo studiosRepo
}

func NewHandler(repo studiosRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.studios.new")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var studio Studio
	if err := json.NewDecoder(r.Body).Decode(&studio); err != nil {
		log.Tracef("new studio, unmarshal json params: %s", err)
		http.Error(w, "add studio failed", http.StatusBadRequest)
		return
	}

	if studio.Name == "" || studio.City == "" {
		http.Error(w, "error, studio name or city empty", http.StatusBadRequest)
		return
	}

	if studio.CreatedAt.IsZero() {
		studio.CreatedAt = time.Now()
	}

	addedStudio, err := handler.repo.Add(ctx, studio)
	if err != nil {
		log.Errorf("failed to add new studio [%s]: %s", studio.Name, err)
		http.Error(w, "error, failed to add new studio", http.StatusInternalServerError)
		return
	}

	addedStudioJson, err := json.Marshal(addedStudio)
	if err != nil {
		log.Errorf("failed to marshal new studio: %s", err)
		http.Error(w, "error, failed to add new studio", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedStudioJson, http.StatusCreated)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.studios.update")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var studio Studio
	if err := json.NewDecoder(r.Body).Decode(&studio); err != nil {
		log.Errorf("update studio, unmarshal json params: %s", err)
		http.Error(w, "update studio failed", http.StatusBadRequest)
		return
	}

	if studio.Name == "" || studio.City == "" {
		http.Error(w, "error, studio name or city empty", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Update(ctx, &studio); err != nil {
		if errors.Is(err, ErrStudioNotFound) {
			http.Error(w, "studio not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to update studio [%d]: %s", studio.ID, err)
		http.Error(w, "error, failed to update studio", http.StatusInternalServerError)
		return
	}

	updateRespJson, err := json.Marshal(UpdateStudioResponse{
		UpdatedID: studio.ID,
	})
	if err != nil {
		log.Errorf("failed to marshal update response: %s", err)
		http.Error(w, "failed to marshal update response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(updateRespJson))
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.studios.get")
	defer span.End()

	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	studio, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStudioNotFound) {
			http.Error(w, "studio not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get studio %d: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	studioJson, err := json.Marshal(studio)
	if err != nil {
		log.Errorf("failed to marshal studio: %s", err)
		http.Error(w, "failed to marshal studio", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, studioJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.studios.delete")
	defer span.End()

	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrStudioNotFound) {
			http.Error(w, "studio not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete studio %d: %s", id, err)
		http.Error(w, "studio not deleted", http.StatusInternalServerError)
		return
	}

	deleteRespJson, err := json.Marshal(DeleteStudioResponse{
		DeletedID: id,
	})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "failed to marshal delete response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(deleteRespJson))
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.studios.list")
	defer span.End()

	studios, err := handler.repo.List(ctx, r.URL.Query().Get("city"))
	if err != nil {
		log.Errorf("list studios error: %s", err)
		http.Error(w, "failed to get studios", http.StatusInternalServerError)
		return
	}

	listRespJson, err := json.Marshal(ListResponse{
		Studios: studios,
		Total:   len(studios),
	})
	if err != nil {
		log.Errorf("marshal studios error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, listRespJson, http.StatusOK)
}
