// ABOUTME: Inbound webhook JWT validation and outbound Bot Framework token acquisition.

package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	botFrameworkIssuer = "https://api.botframework.com"
	loginURLTemplate   = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	tokenScope         = "https://api.botframework.com/.default"
)

// validateRequest checks the webhook's bearer token: signature via the
// adapter's key func, audience must be our app ID, issuer must be the
// Bot Framework.
func (a *Adapter) validateRequest(r *http.Request) error {
	auth := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(auth, "Bearer ")
	if !found || raw == "" {
		return fmt.Errorf("missing bearer token")
	}

	token, err := jwt.Parse(raw, a.keyFunc,
		jwt.WithAudience(a.cfg.AppID),
		jwt.WithIssuer(botFrameworkIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("token validation failed")
	}
	return nil
}

// tokenSource fetches and caches the outbound service credential via the
// client-credentials grant.
type tokenSource struct {
	appID     string
	appSecret string
	tenantID  string
	http      *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(appID, appSecret, tenantID string) *tokenSource {
	if tenantID == "" {
		tenantID = "botframework.com"
	}
	return &tokenSource{
		appID:     appID,
		appSecret: appSecret,
		tenantID:  tenantID,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns a valid bearer token, refreshing when within a minute of
// expiry.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expires) > time.Minute {
		return t.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {t.appID},
		"client_secret": {t.appSecret},
		"scope":         {tokenScope},
	}
	endpoint := fmt.Sprintf(loginURLTemplate, t.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting service token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	t.token = body.AccessToken
	t.expires = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return t.token, nil
}
