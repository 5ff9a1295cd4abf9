package api

import (
	"net/http"
	"strconv"

	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/middleware"
	"github.com/pressleaf/biblio/pkg/rbac"
	"github.com/pressleaf/biblio/pkg/validation"
)

// listPosts handles GET /api/v1/posts.
func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	servePage(s, w, r, PostListQuery, s.storage.CountPosts, s.storage.ListPosts)
}

// getPost handles GET /api/v1/posts/{id}.
func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	post, err := s.storage.GetPost(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to get post")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

// createPost handles POST /api/v1/posts. The author is the
// authenticated user, never part of the payload.
func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	var in validation.PostInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := s.validator.ValidatePost(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to create post", errs)
		return
	}

	post := &Post{Title: in.Title, Content: in.Content, AuthorID: identity.UserID}
	if err := s.storage.CreatePost(r.Context(), post); err != nil {
		writeStorageError(w, s.logger, err, "failed to create post")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypePostCreate,
		audit.ResourceTypePost, strconv.FormatInt(post.ID, 10), post.Title)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "post")
	}

	httputil.WriteMessage(w, http.StatusCreated, "Post created successfully", "post", post)
}

// updatePost handles PUT /api/v1/posts/{id}. Only the post's author or
// a moderator may touch it.
func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	post, err := s.storage.GetPost(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to update post")
		return
	}

	allowed, err := s.mayTouchOwned(r.Context(), identity.UserID, post.AuthorID, rbac.ResourcePost)
	if err != nil {
		s.logger.WithError(err).Error("Permission check failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
		return
	}
	if !allowed {
		audit.FromContext(r.Context()).Denied(r.Context(), audit.ResourceTypePost,
			strconv.FormatInt(id, 10), "not the author of this post")
		httputil.WriteForbidden(w, "you do not have permission to perform this action")
		return
	}

	var in validation.PostInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := s.validator.ValidatePost(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to update post", errs)
		return
	}

	post.Title = in.Title
	post.Content = in.Content
	if err := s.storage.UpdatePost(r.Context(), post); err != nil {
		writeStorageError(w, s.logger, err, "failed to update post")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypePostUpdate,
		audit.ResourceTypePost, strconv.FormatInt(post.ID, 10), post.Title)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "post")
	}

	httputil.WriteMessage(w, http.StatusOK, "Post updated successfully", "post", post)
}

// deletePost handles DELETE /api/v1/posts/{id}. Comments cascade with
// the post.
func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	post, err := s.storage.GetPost(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to delete post")
		return
	}

	allowed, err := s.mayTouchOwned(r.Context(), identity.UserID, post.AuthorID, rbac.ResourcePost)
	if err != nil {
		s.logger.WithError(err).Error("Permission check failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
		return
	}
	if !allowed {
		audit.FromContext(r.Context()).Denied(r.Context(), audit.ResourceTypePost,
			strconv.FormatInt(id, 10), "not the author of this post")
		httputil.WriteForbidden(w, "you do not have permission to perform this action")
		return
	}

	if err := s.storage.DeletePost(r.Context(), id); err != nil {
		writeStorageError(w, s.logger, err, "failed to delete post")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypePostDelete,
		audit.ResourceTypePost, strconv.FormatInt(post.ID, 10), post.Title)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "post")
	}

	httputil.WriteMessage(w, http.StatusOK, "Post deleted successfully", "deleted_post", post)
}
