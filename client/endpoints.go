package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"delified/internal/models"
)

// Auth

func (c *Client) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	var out struct {
		User *models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", nil, req, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Login stores the returned session token for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (*models.Session, error) {
	return c.login(ctx, "/api/auth/login", email, password)
}

func (c *Client) AdminLogin(ctx context.Context, email, password string) (*models.Session, error) {
	return c.login(ctx, "/api/auth/admin-login", email, password)
}

func (c *Client) login(ctx context.Context, path, email, password string) (*models.Session, error) {
	var session models.Session
	req := models.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, path, nil, req, &session); err != nil {
		return nil, err
	}
	if err := c.tokens.Save(StoredToken{Token: session.Token, ExpiresAt: session.ExpiresAt}); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return &session, nil
}

// Logout clears the stored token even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
	if clearErr := c.tokens.Clear(); clearErr != nil {
		return errors.Join(err, clearErr)
	}
	return err
}

type CheckResult struct {
	Authenticated bool         `json:"authenticated"`
	User          *models.User `json:"user,omitempty"`
}

// Check reports whether the stored token is still accepted.
func (c *Client) Check(ctx context.Context) (*CheckResult, error) {
	var out CheckResult
	err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return &CheckResult{Authenticated: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MUNs

type MUNQuery struct {
	Query string
	// IncludePast lists MUNs whose date has already passed.
	IncludePast bool
	Limit       int
	Offset      int
}

func (c *Client) ListMUNs(ctx context.Context, q MUNQuery) ([]models.MUN, error) {
	query := page(q.Limit, q.Offset)
	if q.Query != "" {
		query.Set("q", q.Query)
	}
	if q.IncludePast {
		query.Set("upcoming", "false")
	}
	var out []models.MUN
	err := c.do(ctx, http.MethodGet, "/api/muns", query, nil, &out)
	return out, err
}

func (c *Client) GetMUN(ctx context.Context, munID string) (*models.MUN, error) {
	var out models.MUN
	if err := c.do(ctx, http.MethodGet, "/api/muns/"+url.PathEscape(munID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateMUN(ctx context.Context, req models.CreateMUNRequest) (*models.MUN, error) {
	var out models.MUN
	if err := c.do(ctx, http.MethodPost, "/api/muns", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMUN(ctx context.Context, munID string, req models.UpdateMUNRequest) (*models.MUN, error) {
	var out models.MUN
	if err := c.do(ctx, http.MethodPut, "/api/muns/"+url.PathEscape(munID), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PublishMUN(ctx context.Context, munID string) (*models.MUN, error) {
	return c.munAction(ctx, munID, "publish")
}

func (c *Client) CancelMUN(ctx context.Context, munID string) (*models.MUN, error) {
	return c.munAction(ctx, munID, "cancel")
}

func (c *Client) munAction(ctx context.Context, munID, action string) (*models.MUN, error) {
	var out models.MUN
	path := fmt.Sprintf("/api/muns/%s/%s", url.PathEscape(munID), action)
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Dashboard(ctx context.Context) ([]models.MUNStats, error) {
	var out []models.MUNStats
	err := c.do(ctx, http.MethodGet, "/api/muns/dashboard", nil, nil, &out)
	return out, err
}

// Registrations

func (c *Client) Register(ctx context.Context, munID string, answers map[string]string) (*models.Registration, error) {
	var out models.Registration
	req := models.RegisterRequest{MUNID: munID, Answers: answers}
	if err := c.do(ctx, http.MethodPost, "/api/muns/register", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MUNRegistrations(ctx context.Context, munID string, status models.RegistrationStatus) ([]models.Registration, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	var out []models.Registration
	err := c.do(ctx, http.MethodGet, "/api/muns/"+url.PathEscape(munID)+"/registrations", query, nil, &out)
	return out, err
}

func (c *Client) MyRegistrations(ctx context.Context) ([]models.Registration, error) {
	var out []models.Registration
	err := c.do(ctx, http.MethodGet, "/api/registrations", nil, nil, &out)
	return out, err
}

func (c *Client) GetRegistration(ctx context.Context, registrationID string) (*models.Registration, error) {
	var out models.Registration
	if err := c.do(ctx, http.MethodGet, "/api/registrations/"+url.PathEscape(registrationID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelRegistration(ctx context.Context, registrationID string) (*models.Registration, error) {
	var out models.Registration
	if err := c.do(ctx, http.MethodDelete, "/api/registrations/"+url.PathEscape(registrationID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Badge returns the PNG QR badge of a confirmed registration.
func (c *Client) Badge(ctx context.Context, registrationID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/registrations/"+url.PathEscape(registrationID)+"/badge", nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/png")
	data, _, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) CheckIn(ctx context.Context, badge string) (*models.Registration, error) {
	var out models.Registration
	if err := c.do(ctx, http.MethodPost, "/api/registrations/checkin", nil, models.CheckInRequest{Badge: badge}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Payments

func (c *Client) Checkout(ctx context.Context, registrationID string) (*models.Payment, error) {
	var out models.Payment
	req := models.CheckoutRequest{RegistrationID: registrationID}
	if err := c.doEnveloped(ctx, http.MethodPost, "/api/muns/checkout", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pay asks the server to sync the payment with the processor.
func (c *Client) Pay(ctx context.Context, paymentID string) (*models.Payment, error) {
	var out models.Payment
	if err := c.doEnveloped(ctx, http.MethodPost, "/api/payments", nil, models.PayRequest{PaymentID: paymentID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var out models.Payment
	if err := c.doEnveloped(ctx, http.MethodGet, "/api/payments/"+url.PathEscape(paymentID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Community

func (c *Client) ListPosts(ctx context.Context, limit, offset int) ([]models.Post, error) {
	var out []models.Post
	err := c.do(ctx, http.MethodGet, "/api/community/posts", page(limit, offset), nil, &out)
	return out, err
}

func (c *Client) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var out models.Post
	if err := c.do(ctx, http.MethodGet, "/api/community/posts/"+url.PathEscape(postID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePost(ctx context.Context, content string) (*models.Post, error) {
	var out models.Post
	if err := c.do(ctx, http.MethodPost, "/api/community/posts", nil, models.CreatePostRequest{Content: content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/api/community/posts/"+url.PathEscape(postID), nil, nil, nil)
}

func (c *Client) LikePost(ctx context.Context, postID string) (*models.Post, error) {
	return c.like(ctx, http.MethodPost, postID)
}

func (c *Client) UnlikePost(ctx context.Context, postID string) (*models.Post, error) {
	return c.like(ctx, http.MethodDelete, postID)
}

func (c *Client) like(ctx context.Context, method, postID string) (*models.Post, error) {
	var out models.Post
	if err := c.do(ctx, method, "/api/community/posts/"+url.PathEscape(postID)+"/like", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListComments returns a post's comments oldest first.
func (c *Client) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var out []models.Comment
	err := c.do(ctx, http.MethodGet, "/api/community/posts/"+url.PathEscape(postID)+"/comments", nil, nil, &out)
	return out, err
}

func (c *Client) AddComment(ctx context.Context, postID, content string) (*models.Comment, error) {
	var out models.Comment
	req := models.CreateCommentRequest{Content: content}
	if err := c.do(ctx, http.MethodPost, "/api/community/posts/"+url.PathEscape(postID)+"/comments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteComment(ctx context.Context, postID, commentID string) error {
	path := fmt.Sprintf("/api/community/posts/%s/comments/%s", url.PathEscape(postID), url.PathEscape(commentID))
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Admin

func (c *Client) AdminStats(ctx context.Context) (*models.AdminStats, error) {
	var out models.AdminStats
	if err := c.doEnveloped(ctx, http.MethodGet, "/api/admin/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdminListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	var out []models.User
	err := c.doEnveloped(ctx, http.MethodGet, "/api/admin/users", page(limit, offset), nil, &out)
	return out, err
}

func (c *Client) AdminSetUserRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	var out models.User
	path := "/api/admin/users/" + url.PathEscape(userID) + "/role"
	if err := c.doEnveloped(ctx, http.MethodPut, path, nil, models.RoleRequest{Role: role}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdminListMUNs(ctx context.Context, status models.MUNStatus, limit, offset int) ([]models.MUN, error) {
	query := page(limit, offset)
	if status != "" {
		query.Set("status", string(status))
	}
	var out []models.MUN
	err := c.doEnveloped(ctx, http.MethodGet, "/api/admin/muns", query, nil, &out)
	return out, err
}

func (c *Client) AdminSetMUNStatus(ctx context.Context, munID string, status models.MUNStatus) (*models.MUN, error) {
	var out models.MUN
	path := "/api/admin/muns/" + url.PathEscape(munID) + "/status"
	if err := c.doEnveloped(ctx, http.MethodPut, path, nil, models.MUNStatusRequest{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdminMUNRegistrations(ctx context.Context, munID string, status models.RegistrationStatus) ([]models.Registration, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	var out []models.Registration
	err := c.doEnveloped(ctx, http.MethodGet, "/api/admin/muns/"+url.PathEscape(munID)+"/registrations", query, nil, &out)
	return out, err
}

func (c *Client) AdminMUNAnalytics(ctx context.Context, munID string) (*models.MUNAnalytics, error) {
	var out models.MUNAnalytics
	if err := c.doEnveloped(ctx, http.MethodGet, "/api/admin/muns/"+url.PathEscape(munID)+"/analytics", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdminDeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/api/admin/posts/"+url.PathEscape(postID), nil, nil, nil)
}
