package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressleaf/biblio/pkg/rbac"
)

func TestListComments_MissingPost(t *testing.T) {
	server, _ := newTestServer(newMockStorage())

	w := doRequest(server, http.MethodGet, "/api/v1/posts/5/comments", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "post 5 not found", decodeBody(t, w)["error"])
}

func TestListComments_ScopedToPost(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	user, _ := seedUser(t, storage, tokens, "blogger", rbac.RoleMember)
	first := seedPost(t, storage, user.ID, "First")
	second := seedPost(t, storage, user.ID, "Second")

	for i := 0; i < 2; i++ {
		require.NoError(t, storage.CreateComment(context.Background(),
			&Comment{PostID: first.ID, AuthorID: user.ID, Content: "on first"}))
	}
	require.NoError(t, storage.CreateComment(context.Background(),
		&Comment{PostID: second.ID, AuthorID: user.ID, Content: "on second"}))

	w := doRequest(server, http.MethodGet, fmt.Sprintf("/api/v1/posts/%d/comments", first.ID), "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["count"])
	assert.Len(t, body["results"], 2)
}

func TestCreateComment_Success(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	author, _ := seedUser(t, storage, tokens, "blogger", rbac.RoleMember)
	commenter, token := seedUser(t, storage, tokens, "reader", rbac.RoleMember)
	post := seedPost(t, storage, author.ID, "Discussed")

	w := doRequest(server, http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/comments", post.ID), token,
		map[string]interface{}{"content": "Great post."})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "Comment created successfully", body["message"])

	comment := body["comment"].(map[string]interface{})
	assert.Equal(t, float64(post.ID), comment["post"])
	assert.Equal(t, float64(commenter.ID), comment["author"])
	assert.Equal(t, "Great post.", comment["content"])
}

func TestCreateComment_MissingPost(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	_, token := seedUser(t, storage, tokens, "reader", rbac.RoleMember)

	w := doRequest(server, http.MethodPost, "/api/v1/posts/8/comments", token,
		map[string]interface{}{"content": "Hello?"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "post 8 not found", decodeBody(t, w)["error"])
}

func TestCreateComment_BlankContent(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	user, token := seedUser(t, storage, tokens, "reader", rbac.RoleMember)
	post := seedPost(t, storage, user.ID, "Quiet")

	w := doRequest(server, http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/comments", post.ID), token,
		map[string]interface{}{"content": "   "})

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Failed to create comment", body["message"])
	assert.Contains(t, body["errors"].(map[string]interface{}), "content")
}

func TestUpdateComment_OwnerMayEdit(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	user, token := seedUser(t, storage, tokens, "reader", rbac.RoleMember)
	post := seedPost(t, storage, user.ID, "Edited")

	comment := &Comment{PostID: post.ID, AuthorID: user.ID, Content: "typo"}
	require.NoError(t, storage.CreateComment(context.Background(), comment))

	w := doRequest(server, http.MethodPut, fmt.Sprintf("/api/v1/comments/%d", comment.ID), token,
		map[string]interface{}{"content": "fixed"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Comment updated successfully", body["message"])
	assert.Equal(t, "fixed", body["comment"].(map[string]interface{})["content"])
}

func TestUpdateComment_NonOwnerForbidden(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	owner, _ := seedUser(t, storage, tokens, "owner", rbac.RoleMember)
	_, intruderToken := seedUser(t, storage, tokens, "intruder", rbac.RoleMember)
	post := seedPost(t, storage, owner.ID, "Guarded")

	comment := &Comment{PostID: post.ID, AuthorID: owner.ID, Content: "mine"}
	require.NoError(t, storage.CreateComment(context.Background(), comment))

	w := doRequest(server, http.MethodPut, fmt.Sprintf("/api/v1/comments/%d", comment.ID), intruderToken,
		map[string]interface{}{"content": "hijacked"})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteComment_EditorMayModerate(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	owner, _ := seedUser(t, storage, tokens, "owner", rbac.RoleMember)
	_, editorToken := seedUser(t, storage, tokens, "moderator", rbac.RoleEditor)
	post := seedPost(t, storage, owner.ID, "Moderated")

	comment := &Comment{PostID: post.ID, AuthorID: owner.ID, Content: "spam"}
	require.NoError(t, storage.CreateComment(context.Background(), comment))

	w := doRequest(server, http.MethodDelete, fmt.Sprintf("/api/v1/comments/%d", comment.ID), editorToken, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Comment deleted successfully", decodeBody(t, w)["message"])

	_, err := storage.GetComment(context.Background(), comment.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
