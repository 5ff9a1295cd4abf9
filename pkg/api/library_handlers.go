package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/middleware"
	"github.com/pressleaf/biblio/pkg/rbac"
	"github.com/pressleaf/biblio/pkg/validation"
)

// listLibraries handles GET /api/v1/libraries.
func (s *Server) listLibraries(w http.ResponseWriter, r *http.Request) {
	servePage(s, w, r, LibraryListQuery, s.storage.CountLibraries, s.storage.ListLibraries)
}

// getLibrary handles GET /api/v1/libraries/{id}. The response embeds
// the shelf and the librarian assignment.
func (s *Server) getLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	library, err := s.storage.GetLibrary(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to get library")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, library)
}

// createLibrary handles POST /api/v1/libraries.
func (s *Server) createLibrary(w http.ResponseWriter, r *http.Request) {
	var in validation.LibraryInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := s.validator.ValidateLibrary(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to create library", errs)
		return
	}

	library := &Library{Name: in.Name}
	if err := s.storage.CreateLibrary(r.Context(), library); err != nil {
		writeStorageError(w, s.logger, err, "failed to create library")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeLibraryCreate,
		audit.ResourceTypeLibrary, strconv.FormatInt(library.ID, 10), library.Name)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "library")
	}

	httputil.WriteMessage(w, http.StatusCreated, "Library created successfully", "library", library)
}

// updateLibrary handles PUT /api/v1/libraries/{id}.
func (s *Server) updateLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	library, err := s.storage.GetLibrary(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to update library")
		return
	}

	var in validation.LibraryInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	if errs := s.validator.ValidateLibrary(&in); errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to update library", errs)
		return
	}

	library.Name = in.Name
	if err := s.storage.UpdateLibrary(r.Context(), library); err != nil {
		writeStorageError(w, s.logger, err, "failed to update library")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeLibraryUpdate,
		audit.ResourceTypeLibrary, strconv.FormatInt(library.ID, 10), library.Name)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "library")
	}

	httputil.WriteMessage(w, http.StatusOK, "Library updated successfully", "library", library)
}

// deleteLibrary handles DELETE /api/v1/libraries/{id}. Shelf rows and
// the librarian assignment go with it; the books survive.
func (s *Server) deleteLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	library, err := s.storage.GetLibrary(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to delete library")
		return
	}

	if err := s.storage.DeleteLibrary(r.Context(), id); err != nil {
		writeStorageError(w, s.logger, err, "failed to delete library")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeLibraryDelete,
		audit.ResourceTypeLibrary, strconv.FormatInt(library.ID, 10), library.Name)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "library")
	}

	httputil.WriteMessage(w, http.StatusOK, "Library deleted successfully", "deleted_library", library)
}

// shelveBook handles POST /api/v1/libraries/{id}/books/{bookID}.
// Shelving twice is a no-op.
func (s *Server) shelveBook(w http.ResponseWriter, r *http.Request) {
	libraryID, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	bookID, ok := httputil.ParsePathID(w, r, "bookID")
	if !ok {
		return
	}

	if _, err := s.storage.GetLibrary(r.Context(), libraryID); err != nil {
		writeStorageError(w, s.logger, err, "failed to shelve book")
		return
	}
	if !s.requireBranchLibrarian(w, r, libraryID) {
		return
	}

	book, err := s.storage.GetBook(r.Context(), bookID)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to shelve book")
		return
	}

	if err := s.storage.AddLibraryBook(r.Context(), libraryID, bookID); err != nil {
		writeStorageError(w, s.logger, err, "failed to shelve book")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeBookShelve,
		audit.ResourceTypeShelf, strconv.FormatInt(libraryID, 10), book.Title)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "shelf")
	}

	httputil.WriteMessage(w, http.StatusOK, "Book shelved successfully", "book", book)
}

// unshelveBook handles DELETE /api/v1/libraries/{id}/books/{bookID}.
func (s *Server) unshelveBook(w http.ResponseWriter, r *http.Request) {
	libraryID, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}
	bookID, ok := httputil.ParsePathID(w, r, "bookID")
	if !ok {
		return
	}

	if _, err := s.storage.GetLibrary(r.Context(), libraryID); err != nil {
		writeStorageError(w, s.logger, err, "failed to unshelve book")
		return
	}
	if !s.requireBranchLibrarian(w, r, libraryID) {
		return
	}

	book, err := s.storage.GetBook(r.Context(), bookID)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to unshelve book")
		return
	}

	if err := s.storage.RemoveLibraryBook(r.Context(), libraryID, bookID); err != nil {
		writeStorageError(w, s.logger, err, "failed to unshelve book")
		return
	}

	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeBookUnshelve,
		audit.ResourceTypeShelf, strconv.FormatInt(libraryID, 10), book.Title)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "shelf")
	}

	httputil.WriteMessage(w, http.StatusOK, "Book unshelved successfully", "book", book)
}

// assignLibrarian handles PUT /api/v1/libraries/{id}/librarian. A new
// assignment replaces the previous one.
func (s *Server) assignLibrarian(w http.ResponseWriter, r *http.Request) {
	libraryID, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	if _, err := s.storage.GetLibrary(r.Context(), libraryID); err != nil {
		writeStorageError(w, s.logger, err, "failed to assign librarian")
		return
	}

	var in validation.LibrarianInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	errs := s.validator.ValidateLibrarian(&in)
	if !errs.HasErrors() {
		_, err := s.storage.GetUser(r.Context(), in.UserID)
		if errors.Is(err, ErrNotFound) {
			errs.Add("user", fmt.Sprintf("User with id %d does not exist.", in.UserID))
		} else if err != nil {
			writeStorageError(w, s.logger, err, "failed to assign librarian")
			return
		}
	}
	if errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to assign librarian", errs)
		return
	}

	if err := s.storage.AssignLibrarian(r.Context(), libraryID, in.UserID); err != nil {
		writeStorageError(w, s.logger, err, "failed to assign librarian")
		return
	}

	librarian, err := s.storage.GetLibrarian(r.Context(), libraryID)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to assign librarian")
		return
	}

	audit.FromContext(r.Context()).RoleChange(r.Context(), audit.EventTypeLibrarianAssign,
		in.UserID, fmt.Sprintf("assigned as librarian of library %d", libraryID))

	httputil.WriteMessage(w, http.StatusOK, "Librarian assigned successfully", "librarian", librarian)
}

// requireBranchLibrarian enforces the branch binding on shelf
// mutations: admins may touch any shelf, librarians only the shelf of
// the library they are assigned to. Writes the response itself when
// the caller fails the check.
func (s *Server) requireBranchLibrarian(w http.ResponseWriter, r *http.Request, libraryID int64) bool {
	identity := middleware.GetIdentity(r)

	role, err := s.checker.Role(r.Context(), identity.UserID)
	if err != nil {
		s.logger.WithError(err).Error("Permission check failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "permission check failed")
		return false
	}
	if role == rbac.RoleAdmin {
		return true
	}

	librarian, err := s.storage.GetLibrarian(r.Context(), libraryID)
	if errors.Is(err, ErrNotFound) || (err == nil && librarian.UserID != identity.UserID) {
		audit.FromContext(r.Context()).Denied(r.Context(), audit.ResourceTypeShelf,
			strconv.FormatInt(libraryID, 10), "not the librarian of this library")
		httputil.WriteForbidden(w, "you are not the librarian of this library")
		return false
	}
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to check librarian assignment")
		return false
	}
	return true
}
