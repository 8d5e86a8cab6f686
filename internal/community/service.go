package community

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"delified/internal/community/db"
	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/utils"
)

var (
	ErrPostNotFound    = db.ErrPostNotFound
	ErrCommentNotFound = db.ErrCommentNotFound

	ErrForbidden      = errors.New("not allowed to modify this content")
	ErrInvalidContent = errors.New("invalid content")
)

const (
	maxPostLength    = 2000
	maxCommentLength = 1000
	defaultPageSize  = 20
	maxPageSize      = 100
)

type DBLayer interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id, viewerID string) (*models.Post, error)
	ListPosts(ctx context.Context, viewerID string, limit, offset int) ([]models.Post, error)
	DeletePost(ctx context.Context, id string) error
	Like(ctx context.Context, like *models.PostLike) (bool, error)
	Unlike(ctx context.Context, postID, userID string) (bool, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

type EventPublisher interface {
	PublishPost(ctx context.Context, event models.PostEvent) error
}

type CommunityService struct {
	DB     DBLayer
	Events EventPublisher
	Logger *logger.Logger
	now    func() time.Time
}

func NewCommunityService(d DBLayer, events EventPublisher, log *logger.Logger) *CommunityService {
	return &CommunityService{DB: d, Events: events, Logger: log, now: time.Now}
}

func cleanContent(content string, max int) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is empty", ErrInvalidContent)
	}
	if utf8.RuneCountInString(content) > max {
		return "", fmt.Errorf("%w: content exceeds %d characters", ErrInvalidContent, max)
	}
	return content, nil
}

func viewerID(p *models.Principal) string {
	if p == nil {
		return ""
	}
	return p.UserID
}

// ListPosts pages through the feed, newest first. viewer may be nil.
func (s *CommunityService) ListPosts(ctx context.Context, viewer *models.Principal, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.DB.ListPosts(ctx, viewerID(viewer), limit, offset)
}

func (s *CommunityService) GetPost(ctx context.Context, viewer *models.Principal, id string) (*models.Post, error) {
	return s.DB.GetPost(ctx, id, viewerID(viewer))
}

func (s *CommunityService) CreatePost(ctx context.Context, p *models.Principal, content string) (*models.Post, error) {
	content, err := cleanContent(content, maxPostLength)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:         utils.NewID(),
		AuthorID:   p.UserID,
		AuthorName: p.DisplayName(),
		Content:    content,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.DB.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	s.Logger.Info("COMMUNITY", fmt.Sprintf("Post %s created by %s", post.ID, p.UserID))

	event := models.PostEvent{Type: models.EventPostCreated, PostID: post.ID, AuthorID: post.AuthorID, Timestamp: post.CreatedAt}
	if err := s.Events.PublishPost(ctx, event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", event.Type, post.ID, err))
	}
	return post, nil
}

// DeletePost is allowed for the author and admins.
func (s *CommunityService) DeletePost(ctx context.Context, p *models.Principal, id string) error {
	post, err := s.DB.GetPost(ctx, id, "")
	if err != nil {
		return err
	}
	if post.AuthorID != p.UserID && !p.IsAdmin() {
		return ErrForbidden
	}
	if err := s.DB.DeletePost(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("COMMUNITY", fmt.Sprintf("Post %s deleted by %s", id, p.UserID))
	return nil
}

// Like is idempotent and returns the post with fresh counts.
func (s *CommunityService) Like(ctx context.Context, p *models.Principal, postID string) (*models.Post, error) {
	if _, err := s.DB.GetPost(ctx, postID, ""); err != nil {
		return nil, err
	}
	like := &models.PostLike{PostID: postID, UserID: p.UserID, CreatedAt: s.now().UTC()}
	if _, err := s.DB.Like(ctx, like); err != nil {
		return nil, fmt.Errorf("failed to like post: %w", err)
	}
	return s.DB.GetPost(ctx, postID, p.UserID)
}

// Unlike is idempotent and returns the post with fresh counts.
func (s *CommunityService) Unlike(ctx context.Context, p *models.Principal, postID string) (*models.Post, error) {
	if _, err := s.DB.GetPost(ctx, postID, ""); err != nil {
		return nil, err
	}
	if _, err := s.DB.Unlike(ctx, postID, p.UserID); err != nil {
		return nil, fmt.Errorf("failed to unlike post: %w", err)
	}
	return s.DB.GetPost(ctx, postID, p.UserID)
}

func (s *CommunityService) AddComment(ctx context.Context, p *models.Principal, postID, content string) (*models.Comment, error) {
	content, err := cleanContent(content, maxCommentLength)
	if err != nil {
		return nil, err
	}
	if _, err := s.DB.GetPost(ctx, postID, ""); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:         utils.NewID(),
		PostID:     postID,
		AuthorID:   p.UserID,
		AuthorName: p.DisplayName(),
		Content:    content,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.DB.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return comment, nil
}

func (s *CommunityService) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	if _, err := s.DB.GetPost(ctx, postID, ""); err != nil {
		return nil, err
	}
	return s.DB.ListComments(ctx, postID)
}

// DeleteComment is allowed for the comment's author and admins.
func (s *CommunityService) DeleteComment(ctx context.Context, p *models.Principal, postID, commentID string) error {
	comment, err := s.DB.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.PostID != postID {
		return ErrCommentNotFound
	}
	if comment.AuthorID != p.UserID && !p.IsAdmin() {
		return ErrForbidden
	}
	return s.DB.DeleteComment(ctx, commentID)
}
