package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pressleaf/biblio/pkg/audit"
	"github.com/pressleaf/biblio/pkg/httputil"
	"github.com/pressleaf/biblio/pkg/validation"
)

// listBooks handles GET /api/v1/books.
func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	servePage(s, w, r, BookListQuery, s.storage.CountBooks, s.storage.ListBooks)
}

// getBook handles GET /api/v1/books/{id}.
func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	book, err := s.storage.GetBook(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to get book")
		return
	}

	if s.usage != nil {
		s.usage.BookViewed(r.Context(), book.ID)
	}
	httputil.WriteJSON(w, http.StatusOK, book)
}

// createBook handles POST /api/v1/books.
func (s *Server) createBook(w http.ResponseWriter, r *http.Request) {
	var in validation.BookInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	errs := s.validator.ValidateBook(&in)
	if !errs.HasErrors() {
		if err := s.checkAuthorRef(r.Context(), in.AuthorID, errs); err != nil {
			writeStorageError(w, s.logger, err, "failed to create book")
			return
		}
	}
	if errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to create book", errs)
		return
	}

	book := &Book{
		Title:           in.Title,
		PublicationYear: in.PublicationYear,
		AuthorID:        in.AuthorID,
		ISBN:            in.ISBN,
		Description:     in.Description,
	}
	if err := s.storage.CreateBook(r.Context(), book); err != nil {
		writeStorageError(w, s.logger, err, "failed to create book")
		return
	}

	s.logger.Infof("New book created: %s by %s", book.Title, book.AuthorName)
	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeBookCreate,
		audit.ResourceTypeBook, strconv.FormatInt(book.ID, 10), book.Title)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "book")
	}

	httputil.WriteMessage(w, http.StatusCreated, "Book created successfully", "book", book)
}

// updateBook handles PUT /api/v1/books/{id}.
func (s *Server) updateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	current, err := s.storage.GetBook(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to update book")
		return
	}

	var in validation.BookInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	errs := s.validator.ValidateBook(&in)
	if !errs.HasErrors() {
		if err := s.checkAuthorRef(r.Context(), in.AuthorID, errs); err != nil {
			writeStorageError(w, s.logger, err, "failed to update book")
			return
		}
	}
	if errs.HasErrors() {
		httputil.WriteFieldErrors(w, "Failed to update book", errs)
		return
	}

	book := &Book{
		ID:              id,
		Title:           in.Title,
		PublicationYear: in.PublicationYear,
		AuthorID:        in.AuthorID,
		ISBN:            in.ISBN,
		Description:     in.Description,
		CoverURL:        current.CoverURL,
		CreatedAt:       current.CreatedAt,
	}
	if err := s.storage.UpdateBook(r.Context(), book); err != nil {
		writeStorageError(w, s.logger, err, "failed to update book")
		return
	}

	s.logger.Infof("Book updated: %s", book.Title)
	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeBookUpdate,
		audit.ResourceTypeBook, strconv.FormatInt(book.ID, 10), book.Title)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "book")
	}

	httputil.WriteMessage(w, http.StatusOK, "Book updated successfully", "book", book)
}

// deleteBook handles DELETE /api/v1/books/{id}.
func (s *Server) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathID(w, r, "id")
	if !ok {
		return
	}

	book, err := s.storage.GetBook(r.Context(), id)
	if err != nil {
		writeStorageError(w, s.logger, err, "failed to delete book")
		return
	}

	if err := s.storage.DeleteBook(r.Context(), id); err != nil {
		writeStorageError(w, s.logger, err, "failed to delete book")
		return
	}

	s.logger.Infof("Book deleted: %s by %s", book.Title, book.AuthorName)
	audit.FromContext(r.Context()).Mutation(r.Context(), audit.EventTypeBookDelete,
		audit.ResourceTypeBook, strconv.FormatInt(book.ID, 10), book.Title)
	if s.usage != nil {
		s.usage.MutationRecorded(r.Context(), "book")
	}

	httputil.WriteMessage(w, http.StatusOK, "Book deleted successfully", "deleted_book", book)
}

// checkAuthorRef verifies the author reference on a book payload,
// adding a field error when it points at no stored author. Only
// storage failures come back as errors.
func (s *Server) checkAuthorRef(ctx context.Context, authorID int64, errs validation.FieldErrors) error {
	_, err := s.storage.GetAuthor(ctx, authorID)
	if errors.Is(err, ErrNotFound) {
		errs.Add("author", fmt.Sprintf("Author with id %d does not exist.", authorID))
		return nil
	}
	return err
}
