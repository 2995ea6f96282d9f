package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	domain "github.com/andriy-shtumpf/todo-test/internal/domain/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified subject extracted from a bearer token.
type Identity struct {
	SubjectID string
	Email     string
}

// Verifier validates an opaque bearer credential and returns the
// subject behind it. Verification is stateless: no session is kept and
// every call is independently checked.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

const defaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const defaultCertsTTL = time.Hour

// TokenVerifier checks provider-issued ID tokens against the provider's
// published signing certificates. Certificates are fetched over HTTP,
// keyed by kid and cached until the endpoint's max-age elapses.
type TokenVerifier struct {
	projectID string
	certsURL  string
	client    *http.Client

	mu        sync.Mutex
	certs     map[string]*rsa.PublicKey
	refreshAt time.Time
}

func NewTokenVerifier(projectID string) *TokenVerifier {
	return NewTokenVerifierWithCertsURL(projectID, defaultCertsURL)
}

// NewTokenVerifierWithCertsURL points the verifier at an alternative
// certificate endpoint, used with identity emulators and in tests.
func NewTokenVerifierWithCertsURL(projectID, certsURL string) *TokenVerifier {
	return &TokenVerifier{
		projectID: projectID,
		certsURL:  certsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			kid, _ := t.Header["kid"].(string)
			return v.signingKey(ctx, kid)
		},
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, domain.ErrUpstream) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidCredential
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrInvalidCredential)
	}
	email, _ := claims["email"].(string)

	return &Identity{SubjectID: sub, Email: email}, nil
}

func (v *TokenVerifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.certs == nil || time.Now().After(v.refreshAt) {
		if err := v.refreshCerts(ctx); err != nil {
			return nil, err
		}
	}
	if key, ok := v.certs[kid]; ok {
		return key, nil
	}

	// the provider may have rotated keys since the last fetch
	if err := v.refreshCerts(ctx); err != nil {
		return nil, err
	}
	if key, ok := v.certs[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("no certificate for key id %q", kid)
}

// refreshCerts requires v.mu to be held.
func (v *TokenVerifier) refreshCerts(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		log.Println("[ERROR] Failed to fetch signing certificates:", err)
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		log.Println("[ERROR] Certificate endpoint returned status:", resp.StatusCode)
		return fmt.Errorf("%w: certificate endpoint returned %d", domain.ErrUpstream, resp.StatusCode)
	}

	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}

	certs := make(map[string]*rsa.PublicKey, len(payload))
	for kid, pemData := range payload {
		key, err := parseCertPEM(pemData)
		if err != nil {
			log.Println("[WARN] Skipping unparseable certificate:", kid, err)
			continue
		}
		certs[kid] = key
	}
	if len(certs) == 0 {
		return fmt.Errorf("%w: no usable signing certificates", domain.ErrUpstream)
	}

	v.certs = certs
	v.refreshAt = time.Now().Add(certsMaxAge(resp.Header.Get("Cache-Control")))
	return nil
}

func parseCertPEM(data string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not carry an RSA key")
	}
	return key, nil
}

func certsMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		if raw, ok := strings.CutPrefix(part, "max-age="); ok {
			if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return defaultCertsTTL
}
