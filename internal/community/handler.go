package community

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"
	"github.com/pilatesloop/backend/pkg"
)

type DeletePostResponse struct {
	DeletedID int `json:"deletedId"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.community.new")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var post Post
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		log.Tracef("new post, unmarshal json params: %s", err)
		http.Error(w, "add post failed", http.StatusBadRequest)
		return
	}

	if post.UserID < 1 || post.Content == "" {
		http.Error(w, "error, user id or content empty", http.StatusBadRequest)
		return
	}

	addedPost, err := handler.service.AddPost(ctx, post)
	if err != nil {
		log.Errorf("failed to add new post for user %d: %s", post.UserID, err)
		http.Error(w, "error, failed to add new post", http.StatusInternalServerError)
		return
	}

	addedPostJson, err := json.Marshal(addedPost)
	if err != nil {
		log.Errorf("failed to marshal new post: %s", err)
		http.Error(w, "error, failed to add new post", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedPostJson, http.StatusCreated)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.community.list")
	defer span.End()

	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		log.Tracef("handle feed page, from <page> param: %s", err)
		http.Error(w, "parse form error, parameter <page>", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil {
		log.Tracef("handle feed page, from <size> param: %s", err)
		http.Error(w, "parse form error, parameter <size>", http.StatusBadRequest)
		return
	}

	if page < 1 || size < 1 {
		http.Error(w, "invalid page or size (has to be non-zero value)", http.StatusBadRequest)
		return
	}

	feedPage, err := handler.service.FeedPage(ctx, page, size)
	if err != nil {
		log.Errorf("failed to get feed page %d: %s", page, err)
		http.Error(w, "failed to get feed page", http.StatusInternalServerError)
		return
	}

	feedPageJson, err := json.Marshal(feedPage)
	if err != nil {
		log.Errorf("failed to marshal feed page: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, feedPageJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.community.delete")
	defer span.End()

	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	if err := handler.service.DeletePost(ctx, id); err != nil {
		if errors.Is(err, ErrPostNotFound) {
			http.Error(w, "post not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete post %d: %s", id, err)
		http.Error(w, "post not deleted", http.StatusInternalServerError)
		return
	}

	deleteRespJson, err := json.Marshal(DeletePostResponse{
		DeletedID: id,
	})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "failed to marshal delete response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(deleteRespJson))
}
