// ABOUTME: Bot Framework signing-key discovery for webhook JWT validation.

package teams

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const openIDMetadataURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"

type openIDMetadata struct {
	JWKSURI string `json:"jwks_uri"`
}

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// BotFrameworkKeyFunc returns a jwt.Keyfunc backed by the Bot Framework's
// published signing keys. The key set is fetched lazily and refreshed
// daily, which matches how often Microsoft rotates it.
func BotFrameworkKeyFunc() jwt.Keyfunc {
	cache := &jwksCache{
		client: &http.Client{Timeout: 15 * time.Second},
	}
	return cache.keyFunc
}

type jwksCache struct {
	client *http.Client

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func (c *jwksCache) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token has no key id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keys == nil || time.Since(c.fetched) > 24*time.Hour {
		keys, err := c.fetch()
		if err != nil {
			return nil, err
		}
		c.keys = keys
		c.fetched = time.Now()
	}

	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

func (c *jwksCache) fetch() (map[string]*rsa.PublicKey, error) {
	var meta openIDMetadata
	if err := c.getJSON(openIDMetadataURL, &meta); err != nil {
		return nil, fmt.Errorf("fetching openid metadata: %w", err)
	}

	var doc jwksDocument
	if err := c.getJSON(meta.JWKSURI, &doc); err != nil {
		return nil, fmt.Errorf("fetching signing keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			return nil, fmt.Errorf("parsing key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no RSA keys in signing key set")
	}
	return keys, nil
}

func (c *jwksCache) getJSON(url string, out any) error {
	resp, err := c.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseRSAKey(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
