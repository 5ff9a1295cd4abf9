package api

import (
	"net/http"
	"strconv"

	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/validation"
)

// listAuthors handles GET /api/v1/authors.
func (s *Server) listAuthors(w http.ResponseWriter, r *http.Request) {
	servePage(s, w, r, AuthorListQuery, s.storage.CountAuthors, s.storage.ListAuthors)
}

// getAuthor handles GET /api/v1/authors/{id}. The response embeds the
// author's books in the catalog's default order.
func (s *Server) getAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	author, err := s.storage.GetAuthor(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to get author")
		return
	}

	if s.usage != nil {
		s.usage.AuthorViewed(r.Context(), author.ID)
	}
	httputil.WriteJSON(w, http.StatusOK, author)
}

// createAuthor handles POST /api/v1/authors.
func (s *Server) createAuthor(w http.ResponseWriter, r *http.Request) {
	var in validation.AuthorInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := s.validator.ValidateAuthor(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to create author", errs)
		return
	}

	author := &Author{Name: in.Name}
	if err := s.storage.CreateAuthor(r.Context(), author); err != nil {
		writeStorageError(w, s.logger, err, "failed to create author")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeAuthorCreate,
		audit.ResourceTypeAuthor, strconv.FormatInt(author.ID, 10), author.Name)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "author")
	}

	httputil.WriteMessage(w, http.StatusCreated, "Author created successfully", "author", author)
}

// updateAuthor handles PUT /api/v1/authors/{id}.
func (s *Server) updateAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	current, err := s.storage.GetAuthor(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to update author")
		return
	}

	var in validation.AuthorInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := s.validator.ValidateAuthor(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to update author", errs)
		return
	}

	author := &Author{ID: id, Name: in.Name, CreatedAt: current.CreatedAt}
	if err := s.storage.UpdateAuthor(r.Context(), author); err != nil {
		writeStorageError(w, s.logger, err, "failed to update author")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeAuthorUpdate,
		audit.ResourceTypeAuthor, strconv.FormatInt(author.ID, 10), author.Name)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "author")
	}

	httputil.WriteMessage(w, http.StatusOK, "Author updated successfully", "author", author)
}

// deleteAuthor handles DELETE /api/v1/authors/{id}. The author's books
// go with it.
func (s *Server) deleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	author, err := s.storage.GetAuthor(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to delete author")
		return
	}

	if err := s.storage.DeleteAuthor(r.Context(), id); err != nil {
		writeStorageError(w, s.logger, err, "failed to delete author")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeAuthorDelete,
		audit.ResourceTypeAuthor, strconv.FormatInt(author.ID, 10), author.Name)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "author")
	}

	httputil.WriteMessage(w, http.StatusOK, "Author deleted successfully", "deleted_author", author)
}
