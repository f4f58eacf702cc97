// Package token keeps user access credentials fresh. A caller asks for a
// valid credential and the refresher transparently exchanges an expired one
// against the provider's token endpoint.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
)

// CredentialStore is the slice of storage the refresher needs.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID int64) (domain.Credential, error)
	SaveCredential(ctx context.Context, userID int64, access, refresh string, expiresAt time.Time) error
}

// Config identifies this client against the provider's token endpoint.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Refresher resolves currently-valid access credentials for users.
type Refresher struct {
	store  CredentialStore
	cfg    Config
	log    *zap.Logger
	client *http.Client
	now    func() time.Time
}

// New creates a Refresher with a bounded HTTP timeout.
func New(store CredentialStore, cfg Config, log *zap.Logger) *Refresher {
	return &Refresher{
		store:  store,
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
	}
}

// GetValidCredential returns a credential whose access token is usable right
// now. An unexpired stored credential is returned as-is without any network
// call. An expired one is exchanged via the refresh token; the rotated pair
// is persisted before being returned. Failures leave the stored record
// untouched and surface as ErrNoCredential or ErrRefreshFailed.
func (r *Refresher) GetValidCredential(ctx context.Context, userID int64) (domain.Credential, error) {
	cred, err := r.store.GetCredential(ctx, userID)
	if err != nil {
		return domain.Credential{}, err
	}

	if !cred.Expired(r.now()) {
		return cred, nil
	}

	if cred.RefreshToken == "" {
		r.log.Warn("expired credential has no refresh token", zap.Int64("userID", userID))
		return domain.Credential{}, fmt.Errorf("%w: no refresh token for user %d", domain.ErrRefreshFailed, userID)
	}

	r.log.Info("refreshing expired credential", zap.Int64("userID", userID))
	return r.exchange(ctx, userID, cred.RefreshToken)
}

// tokenResponse is the provider's refresh-grant reply. RefreshToken is only
// present when the provider rotates it.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (r *Refresher) exchange(ctx context.Context, userID int64, refreshToken string) (domain.Credential, error) {
	form := url.Values{
		"client_id":     {r.cfg.ClientID},
		"client_secret": {r.cfg.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Warn("token endpoint rejected refresh",
			zap.Int64("userID", userID),
			zap.Int("status", resp.StatusCode),
		)
		return domain.Credential{}, fmt.Errorf("%w: token endpoint returned %d", domain.ErrRefreshFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return domain.Credential{}, fmt.Errorf("%w: decode response: %v", domain.ErrRefreshFailed, err)
	}
	if tr.AccessToken == "" {
		return domain.Credential{}, fmt.Errorf("%w: empty access token in response", domain.ErrRefreshFailed)
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 3600
	}

	// Keep the old refresh token unless the provider rotated it.
	newRefresh := refreshToken
	if tr.RefreshToken != "" {
		newRefresh = tr.RefreshToken
	}

	// Expiry is now + reported lifetime; request latency skew is accepted.
	expiresAt := r.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if err := r.store.SaveCredential(ctx, userID, tr.AccessToken, newRefresh, expiresAt); err != nil {
		return domain.Credential{}, fmt.Errorf("persist refreshed credential: %w", err)
	}

	r.log.Info("credential refreshed",
		zap.Int64("userID", userID),
		zap.Time("expiresAt", expiresAt),
	)

	return domain.Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    expiresAt,
		UpdatedAt:    r.now().UTC(),
	}, nil
}
