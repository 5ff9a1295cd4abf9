package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/pressleaf/biblio/pkg/api"
	"github.com/pressleaf/biblio/pkg/query"
)

var postColumns = []string{
	"p.id",
	"p.title",
	"p.content",
	"p.author_id",
	"u.username",
	"(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id) AS comment_count",
	"p.published_date",
	"p.updated_at",
}

func scanPost(row rowScanner) (*api.Post, error) {
	var p api.Post
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Content,
		&p.AuthorID,
		&p.AuthorUsername,
		&p.CommentCount,
		&p.PublishedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePost inserts post and fills in its id, author username and
// timestamps. The publication date is the insert time.
func (s *Store) CreatePost(ctx context.Context, post *api.Post) error {
	now := time.Now().UTC()

	err := s.conns.Primary().QueryRowContext(ctx,
		"INSERT INTO posts (title, content, author_id, published_date, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		post.Title, post.Content, post.AuthorID, now, now,
	).Scan(&post.ID)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}

	post.PublishedAt = now
	post.UpdatedAt = now
	post.CommentCount = 0

	err = s.conns.Primary().QueryRowContext(ctx, "SELECT username FROM users WHERE id = $1", post.AuthorID).Scan(&post.AuthorUsername)
	if err != nil {
		return fmt.Errorf("failed to read post author: %w", err)
	}
	return nil
}

// GetPost returns one post with its author username and comment count
// embedded.
func (s *Store) GetPost(ctx context.Context, id int64) (*api.Post, error) {
	row := s.conns.Replica().QueryRowContext(ctx,
		"SELECT "+strings.Join(postColumns, ", ")+" FROM posts p JOIN users u ON u.id = p.author_id WHERE p.id = $1",
		id,
	)

	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "post", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// UpdatePost writes the post's title and content.
func (s *Store) UpdatePost(ctx context.Context, post *api.Post) error {
	now := time.Now().UTC()

	res, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE posts SET title = $1, content = $2, updated_at = $3 WHERE id = $4",
		post.Title, post.Content, now, post.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "post", ID: post.ID}
	}

	post.UpdatedAt = now
	return nil
}

// DeletePost removes one post and, through the foreign key, its
// comments.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.conns.Primary().ExecContext(ctx, "DELETE FROM posts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "post", ID: id}
	}
	return nil
}

// ListPosts returns one page of posts for the given parameters.
func (s *Store) ListPosts(ctx context.Context, p query.Params, page int) ([]*api.Post, error) {
	def := api.PostListQuery

	sb := psql.Select(postColumns...).
		From("posts p").
		Join("users u ON u.id = p.author_id")
	sb = def.ApplyFilters(sb, p)
	sb = def.ApplyOrder(sb, p)
	sb = query.ApplyPage(sb, page, def.PageSize)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build post list query: %w", err)
	}

	rows, err := s.conns.Replica().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*api.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// CountPosts returns how many posts match the given parameters.
func (s *Store) CountPosts(ctx context.Context, p query.Params) (int64, error) {
	def := api.PostListQuery

	sb := psql.Select("COUNT(*)").From("posts p")
	sb = def.ApplyFilters(sb, p)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build post count query: %w", err)
	}

	var count int64
	if err := s.conns.Replica().QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

// CreateComment inserts comment and fills in its id, author username
// and timestamps.
func (s *Store) CreateComment(ctx context.Context, comment *api.Comment) error {
	now := time.Now().UTC()

	err := s.conns.Primary().QueryRowContext(ctx,
		"INSERT INTO comments (post_id, author_id, content, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		comment.PostID, comment.AuthorID, comment.Content, now, now,
	).Scan(&comment.ID)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	comment.CreatedAt = now
	comment.UpdatedAt = now

	err = s.conns.Primary().QueryRowContext(ctx, "SELECT username FROM users WHERE id = $1", comment.AuthorID).Scan(&comment.AuthorUsername)
	if err != nil {
		return fmt.Errorf("failed to read comment author: %w", err)
	}
	return nil
}

// GetComment returns one comment with its author username embedded.
func (s *Store) GetComment(ctx context.Context, id int64) (*api.Comment, error) {
	var c api.Comment
	err := s.conns.Replica().QueryRowContext(ctx,
		`SELECT c.id, c.post_id, c.author_id, u.username, c.content, c.created_at, c.updated_at
		 FROM comments c JOIN users u ON u.id = c.author_id WHERE c.id = $1`,
		id,
	).Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorUsername, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &api.NotFoundError{Resource: "comment", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return &c, nil
}

// UpdateComment writes the comment's content.
func (s *Store) UpdateComment(ctx context.Context, comment *api.Comment) error {
	now := time.Now().UTC()

	res, err := s.conns.Primary().ExecContext(ctx,
		"UPDATE comments SET content = $1, updated_at = $2 WHERE id = $3",
		comment.Content, now, comment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "comment", ID: comment.ID}
	}

	comment.UpdatedAt = now
	return nil
}

// DeleteComment removes one comment.
func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	res, err := s.conns.Primary().ExecContext(ctx, "DELETE FROM comments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &api.NotFoundError{Resource: "comment", ID: id}
	}
	return nil
}

// ListComments returns one page of comments under a post, oldest
// first by default.
func (s *Store) ListComments(ctx context.Context, postID int64, p query.Params, page int) ([]*api.Comment, error) {
	def := api.CommentListQuery

	sb := psql.Select("c.id", "c.post_id", "c.author_id", "u.username", "c.content", "c.created_at", "c.updated_at").
		From("comments c").
		Join("users u ON u.id = c.author_id").
		Where(squirrel.Eq{"c.post_id": postID})
	sb = def.ApplyFilters(sb, p)
	sb = def.ApplyOrder(sb, p)
	sb = query.ApplyPage(sb, page, def.PageSize)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build comment list query: %w", err)
	}

	rows, err := s.conns.Replica().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []*api.Comment
	for rows.Next() {
		var c api.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorUsername, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// CountComments returns how many comments under a post match the
// given parameters.
func (s *Store) CountComments(ctx context.Context, postID int64, p query.Params) (int64, error) {
	def := api.CommentListQuery

	sb := psql.Select("COUNT(*)").
		From("comments c").
		Where(squirrel.Eq{"c.post_id": postID})
	sb = def.ApplyFilters(sb, p)

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build comment count query: %w", err)
	}

	var count int64
	if err := s.conns.Replica().QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return count, nil
}
