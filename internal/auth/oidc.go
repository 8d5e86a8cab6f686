package auth

import (
	"context"
	"fmt"

	"delified/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier accepts bearer tokens issued by an external identity provider
// such as Keycloak.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	// SkipClientIDCheck → tokens from any client of the realm are accepted
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
	}, nil
}

type oidcClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*models.Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return claims.principal(), nil
}

func (c oidcClaims) principal() *models.Principal {
	p := &models.Principal{
		UserID: c.Sub,
		Email:  c.Email,
		Name:   c.Name,
		Role:   models.RoleUser,
	}
	if p.Name == "" {
		p.Name = c.PreferredUsername
	}
	for _, role := range c.RealmAccess.Roles {
		if role == string(models.RoleAdmin) {
			p.Role = models.RoleAdmin
		}
	}
	return p
}
