package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/middleware"
	"github.com/pressleaf/biblio/pkg/query"
	"github.com/pressleaf/biblio/pkg/rbac"
	"github.com/pressleaf/biblio/pkg/validation"
)

// listComments handles GET /api/v1/posts/{id}/comments. Comments of a
// missing post are a 404, not an empty page.
func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	postID, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	if _, err := s.storage.GetPost(r.Context(), postID); err != nil {
		writeStorageError(w, s.logger, err, "failed to list comments")
		return
	}

	count := func(ctx context.Context, p query.Params) (int64, error) {
		return s.storage.CountComments(ctx, postID, p)
	}
	fetch := func(ctx context.Context, p query.Params, page int) ([]*Comment, error) {
		return s.storage.ListComments(ctx, postID, p, page)
	}
	servePage(s, w, r, CommentListQuery, count, fetch)
}

// createComment handles POST /api/v1/posts/{id}/comments.
func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	postID, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	if _, err := s.storage.GetPost(r.Context(), postID); err != nil {
		writeStorageError(w, s.logger, err, "failed to create comment")
		return
	}

	var in validation.CommentInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := s.validator.ValidateComment(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to create comment", errs)
		return
	}

	comment := &Comment{PostID: postID, AuthorID: identity.UserID, Content: in.Content}
	if err := s.storage.CreateComment(r.Context(), comment); err != nil {
		writeStorageError(w, s.logger, err, "failed to create comment")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeCommentCreate,
		audit.ResourceTypeComment, strconv.FormatInt(comment.ID, 10), "")
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "comment")
	}

	httputil.WriteMessage(w, http.StatusCreated, "Comment created successfully", "comment", comment)
}

// updateComment handles PUT /api/v1/comments/{id}. Only the comment's
// author or a moderator may touch it.
func (s *Server) updateComment(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	comment, err := s.storage.GetComment(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to update comment")
		return
	}

	allowed, err := s.mayTouchOwned(r.Context(), identity.UserID, comment.AuthorID, rbac.ResourceComment)
	if err != nil {
		s.logger.WithError(err).Error("Permission check failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
		return
	}
	if !allowed {
		audit.FromContext(r.Context()).Denied(r.Context(), audit.ResourceTypeComment,
			strconv.FormatInt(id, 10), "not the author of this comment")
		httputil.WriteForbidden(w, "you do not have permission to perform this action")
		return
	}

	var in validation.CommentInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := s.validator.ValidateComment(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to update comment", errs)
		return
	}

	comment.Content = in.Content
	if err := s.storage.UpdateComment(r.Context(), comment); err != nil {
		writeStorageError(w, s.logger, err, "failed to update comment")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeCommentUpdate,
		audit.ResourceTypeComment, strconv.FormatInt(comment.ID, 10), "")
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "comment")
	}

	httputil.WriteMessage(w, http.StatusOK, "Comment updated successfully", "comment", comment)
}

// deleteComment handles DELETE /api/v1/comments/{id}.
func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	comment, err := s.storage.GetComment(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to delete comment")
		return
	}

	allowed, err := s.mayTouchOwned(r.Context(), identity.UserID, comment.AuthorID, rbac.ResourceComment)
	if err != nil {
		s.logger.WithError(err).Error("Permission check failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
		return
	}
	if !allowed {
		audit.FromContext(r.Context()).Denied(r.Context(), audit.ResourceTypeComment,
			strconv.FormatInt(id, 10), "not the author of this comment")
		httputil.WriteForbidden(w, "you do not have permission to perform this action")
		return
	}

	if err := s.storage.DeleteComment(r.Context(), id); err != nil {
		writeStorageError(w, s.logger, err, "failed to delete comment")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeCommentDelete,
		audit.ResourceTypeComment, strconv.FormatInt(comment.ID, 10), "")
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "comment")
	}

	httputil.WriteMessage(w, http.StatusOK, "Comment deleted successfully", "deleted_comment", comment)
}
