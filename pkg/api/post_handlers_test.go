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

// seedPost stores a post owned by userID.
func seedPost(t *testing.T, storage *mockStorage, userID int64, title string) *Post {
	t.Helper()

	post := &Post{Title: title, Content: "some thoughts on " + title, AuthorID: userID}
	require.NoError(t, storage.CreatePost(context.Background(), post))
	return post
}

func TestCreatePost_AuthorComesFromToken(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	user, token := seedUser(t, storage, tokens, "blogger", rbac.RoleMember)

	// The payload's author field is ignored.
	w := doRequest(server, http.MethodPost, "/api/v1/posts", token, map[string]interface{}{
		"title":   "My Year in Books",
		"content": "I read a lot.",
		"author":  999,
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "Post created successfully", body["message"])

	post := body["post"].(map[string]interface{})
	assert.Equal(t, float64(user.ID), post["author"])
	assert.Equal(t, "blogger", post["author_username"])
}

func TestCreatePost_Validation(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	_, token := seedUser(t, storage, tokens, "blogger", rbac.RoleMember)

	w := doRequest(server, http.MethodPost, "/api/v1/posts", token, map[string]interface{}{
		"title":   "",
		"content": "",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Failed to create post", body["message"])
	fieldErrors := body["errors"].(map[string]interface{})
	assert.Contains(t, fieldErrors, "title")
	assert.Contains(t, fieldErrors, "content")
}

func TestGetPost_IncludesCommentCount(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	user, _ := seedUser(t, storage, tokens, "blogger", rbac.RoleMember)
	post := seedPost(t, storage, user.ID, "Counted")

	for i := 0; i < 3; i++ {
		comment := &Comment{PostID: post.ID, AuthorID: user.ID, Content: "nice"}
		require.NoError(t, storage.CreateComment(context.Background(), comment))
	}

	w := doRequest(server, http.MethodGet, fmt.Sprintf("/api/v1/posts/%d", post.ID), "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decodeBody(t, w)["comment_count"])
}

func TestUpdatePost_OwnerMayEdit(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	user, token := seedUser(t, storage, tokens, "blogger", rbac.RoleMember)
	post := seedPost(t, storage, user.ID, "Draft")

	w := doRequest(server, http.MethodPut, fmt.Sprintf("/api/v1/posts/%d", post.ID), token, map[string]interface{}{
		"title":   "Final",
		"content": "Done now.",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "Post updated successfully", body["message"])
	assert.Equal(t, "Final", body["post"].(map[string]interface{})["title"])
}

func TestUpdatePost_NonOwnerForbidden(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	owner, _ := seedUser(t, storage, tokens, "owner", rbac.RoleMember)
	_, intruderToken := seedUser(t, storage, tokens, "intruder", rbac.RoleMember)
	post := seedPost(t, storage, owner.ID, "Mine")

	w := doRequest(server, http.MethodPut, fmt.Sprintf("/api/v1/posts/%d", post.ID), intruderToken, map[string]interface{}{
		"title":   "Stolen",
		"content": "x",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "you do not have permission to perform this action", decodeBody(t, w)["error"])
}

func TestUpdatePost_EditorMayModerate(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	owner, _ := seedUser(t, storage, tokens, "owner", rbac.RoleMember)
	_, editorToken := seedUser(t, storage, tokens, "moderator", rbac.RoleEditor)
	post := seedPost(t, storage, owner.ID, "Spammy")

	w := doRequest(server, http.MethodPut, fmt.Sprintf("/api/v1/posts/%d", post.ID), editorToken, map[string]interface{}{
		"title":   "Cleaned",
		"content": "Moderated content.",
	})

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestDeletePost_NonOwnerForbidden(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	owner, _ := seedUser(t, storage, tokens, "owner", rbac.RoleMember)
	_, intruderToken := seedUser(t, storage, tokens, "intruder", rbac.RoleMember)
	post := seedPost(t, storage, owner.ID, "Mine")

	w := doRequest(server, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", post.ID), intruderToken, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err := storage.GetPost(context.Background(), post.ID)
	assert.NoError(t, err)
}

func TestDeletePost_OwnerCascadesComments(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	user, token := seedUser(t, storage, tokens, "blogger", rbac.RoleMember)
	post := seedPost(t, storage, user.ID, "Going Away")

	comment := &Comment{PostID: post.ID, AuthorID: user.ID, Content: "bye"}
	require.NoError(t, storage.CreateComment(context.Background(), comment))

	w := doRequest(server, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", post.ID), token, nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Post deleted successfully", body["message"])
	assert.Equal(t, "Going Away", body["deleted_post"].(map[string]interface{})["title"])

	_, err := storage.GetComment(context.Background(), comment.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePost_NotFound(t *testing.T) {
	storage := newMockStorage()
	server, tokens := newTestServer(storage)
	_, token := seedUser(t, storage, tokens, "blogger", rbac.RoleMember)

	w := doRequest(server, http.MethodPut, "/api/v1/posts/12", token, map[string]interface{}{
		"title":   "X",
		"content": "Y",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "post 12 not found", decodeBody(t, w)["error"])
}
