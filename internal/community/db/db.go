package db

import (
	"context"
	"errors"

	"delified/internal/database"
	"delified/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrCommentNotFound = errors.New("comment not found")
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreatePost(ctx context.Context, post *models.Post) error {
	_, err := d.Bun.NewInsert().Model(post).Exec(ctx)
	return err
}

// postsWithCounts selects posts with their like and comment counts. viewerID
// drives liked_by_me and may be empty.
func (d *DB) postsWithCounts(dst interface{}, viewerID string) *bun.SelectQuery {
	return d.Bun.NewSelect().
		Model(dst).
		ColumnExpr("p.*").
		ColumnExpr("(SELECT COUNT(*) FROM post_likes AS l WHERE l.post_id = p.id) AS like_count").
		ColumnExpr("(SELECT COUNT(*) FROM comments AS c WHERE c.post_id = p.id) AS comment_count").
		ColumnExpr("EXISTS (SELECT 1 FROM post_likes AS l WHERE l.post_id = p.id AND l.user_id = ?) AS liked_by_me", viewerID)
}

func (d *DB) GetPost(ctx context.Context, id, viewerID string) (*models.Post, error) {
	var post models.Post
	err := d.postsWithCounts(&post, viewerID).
		Where("p.id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNotFound(err) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts returns the newest posts first.
func (d *DB) ListPosts(ctx context.Context, viewerID string, limit, offset int) ([]models.Post, error) {
	posts := []models.Post{}
	err := d.postsWithCounts(&posts, viewerID).
		Order("p.created_at DESC", "p.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	return posts, err
}

// DeletePost removes the post with its likes and comments.
func (d *DB) DeletePost(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.PostLike)(nil)).Where("post_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*models.Comment)(nil)).Where("post_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*models.Post)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrPostNotFound
		}
		return nil
	})
}

// Like records a like and reports whether it is new.
func (d *DB) Like(ctx context.Context, like *models.PostLike) (bool, error) {
	res, err := d.Bun.NewInsert().
		Model(like).
		On("CONFLICT (post_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Unlike removes a like and reports whether one existed.
func (d *DB) Unlike(ctx context.Context, postID, userID string) (bool, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.PostLike)(nil)).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (d *DB) CreateComment(ctx context.Context, comment *models.Comment) error {
	_, err := d.Bun.NewInsert().Model(comment).Exec(ctx)
	return err
}

func (d *DB) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	err := d.Bun.NewSelect().
		Model(&comment).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if database.IsNotFound(err) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListComments returns a post's comments oldest first.
func (d *DB) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := d.Bun.NewSelect().
		Model(&comments).
		Where("post_id = ?", postID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	return comments, err
}

func (d *DB) DeleteComment(ctx context.Context, id string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.Comment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCommentNotFound
	}
	return nil
}
