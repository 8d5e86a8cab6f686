package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID           string    `bun:"id,pk" json:"id"`
	AuthorID     string    `bun:"author_id,notnull" json:"author_id"`
	AuthorName   string    `bun:"author_name,notnull" json:"author_name"`
	Content      string    `bun:"content,notnull" json:"content"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
	LikeCount    int       `bun:"like_count,scanonly" json:"like_count"`
	CommentCount int       `bun:"comment_count,scanonly" json:"comment_count"`
	LikedByMe    bool      `bun:"liked_by_me,scanonly" json:"liked_by_me"`
}

type PostLike struct {
	bun.BaseModel `bun:"table:post_likes"`

	PostID    string    `bun:"post_id,pk" json:"post_id"`
	UserID    string    `bun:"user_id,pk" json:"user_id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type Comment struct {
	bun.BaseModel `bun:"table:comments"`

	ID         string    `bun:"id,pk" json:"id"`
	PostID     string    `bun:"post_id,notnull" json:"post_id"`
	AuthorID   string    `bun:"author_id,notnull" json:"author_id"`
	AuthorName string    `bun:"author_name,notnull" json:"author_name"`
	Content    string    `bun:"content,notnull" json:"content"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}

type CreatePostRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type CreateCommentRequest struct {
	Content string `json:"content" validate:"required,max=1000"`
}

const EventPostCreated = "community.post.created"

type PostEvent struct {
	Type      string    `json:"type"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Timestamp time.Time `json:"timestamp"`
}
