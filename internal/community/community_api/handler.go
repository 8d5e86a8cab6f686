package community_api

import (
	"fmt"
	"net/http"

	"delified/internal/auth"
	"delified/internal/community"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	CommunityService *community.CommunityService
	Logger           *logger.Logger
}

func NewHandler(svc *community.CommunityService, log *logger.Logger) *Handler {
	return &Handler{CommunityService: svc, Logger: log}
}

// Routes mounts under /api/community/posts.
func (h *Handler) Routes(r chi.Router, guard auth.Guard) {
	r.Group(func(r chi.Router) {
		r.Use(guard.Optional)
		r.Get("/", h.ListPosts)
		r.Get("/{postId}", h.GetPost)
		r.Get("/{postId}/comments", h.ListComments)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware)
		r.Post("/", h.CreatePost)
		r.Delete("/{postId}", h.DeletePost)
		r.Post("/{postId}/like", h.Like)
		r.Delete("/{postId}/like", h.Unlike)
		r.Post("/{postId}/comments", h.AddComment)
		r.Delete("/{postId}/comments/{commentId}", h.DeleteComment)
	})
}

var statusTable = map[error]int{
	community.ErrPostNotFound:    http.StatusNotFound,
	community.ErrCommentNotFound: http.StatusNotFound,
	community.ErrForbidden:       http.StatusForbidden,
	community.ErrInvalidContent:  http.StatusBadRequest,
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	httpErr := utils.StatusError(err, statusTable)
	if httpErr.Code >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, httpErr)
}

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.CommunityService.ListPosts(r.Context(), auth.PrincipalFrom(r.Context()),
		utils.QueryInt(r, "limit", 0), utils.QueryInt(r, "offset", 0))
	if err != nil {
		h.fail(w, "ListPosts", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, posts)
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.CommunityService.GetPost(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "postId"))
	if err != nil {
		h.fail(w, "GetPost", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, post)
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePostRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "CreatePost", err)
		return
	}

	post, err := h.CommunityService.CreatePost(r.Context(), auth.PrincipalFrom(r.Context()), req.Content)
	if err != nil {
		h.fail(w, "CreatePost", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreatePost: post %s", post.ID))
	utils.WriteJSON(w, http.StatusCreated, post)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.CommunityService.DeletePost(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "postId")); err != nil {
		h.fail(w, "DeletePost", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	post, err := h.CommunityService.Like(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "postId"))
	if err != nil {
		h.fail(w, "Like", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, post)
}

func (h *Handler) Unlike(w http.ResponseWriter, r *http.Request) {
	post, err := h.CommunityService.Unlike(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "postId"))
	if err != nil {
		h.fail(w, "Unlike", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, post)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.CommunityService.ListComments(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		h.fail(w, "ListComments", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, comments)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCommentRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, "AddComment", err)
		return
	}

	comment, err := h.CommunityService.AddComment(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "postId"), req.Content)
	if err != nil {
		h.fail(w, "AddComment", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, comment)
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	err := h.CommunityService.DeleteComment(r.Context(), auth.PrincipalFrom(r.Context()),
		chi.URLParam(r, "postId"), chi.URLParam(r, "commentId"))
	if err != nil {
		h.fail(w, "DeleteComment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
