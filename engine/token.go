package engine

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TokenIssuer signs and verifies the bearer tokens used by API clients and the sweeper.
// The RSA key is generated on first start and persisted to keyFile.
type TokenIssuer struct {
	Key *rsa.PrivateKey
}

func NewTokenIssuer(keyFile string) *TokenIssuer {
	t := &TokenIssuer{}
	if err := t.loadOrGenerateKey(keyFile); err != nil {
		panic(fmt.Errorf("loading token signing key: %w", err))
	}
	return t
}

func (t *TokenIssuer) loadOrGenerateKey(file string) error {
	keyPEM, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("generating RSA key", "file", file)
		pkey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return err
		}
		keyPEM = pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(pkey),
		})
		if err := os.WriteFile(file, keyPEM, 0600); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return errors.New("key file does not contain a PEM block")
	}
	t.Key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	return err
}

func (t *TokenIssuer) Sign(claims *jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(t.Key)
}

func (t *TokenIssuer) Verify(tok string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (any, error) {
		return t.Key.Public(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// DeriveKey returns a stable symmetric key for the given purpose.
// It changes only when the RSA key does.
func (t *TokenIssuer) DeriveKey(purpose string) []byte {
	h := hmac.New(sha256.New, t.Key.D.Bytes())
	h.Write([]byte(purpose))
	return h.Sum(nil)
}

type TokenClaimsFunc func() *jwt.RegisteredClaims

// ServiceClaims returns claims for a short-lived token identifying an internal process.
func ServiceClaims(subject string, ttl time.Duration) TokenClaimsFunc {
	return func() *jwt.RegisteredClaims {
		now := time.Now()
		return &jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		}
	}
}

func (t *TokenIssuer) OAuth2(tcf TokenClaimsFunc) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &tokenSrc{parent: t, claims: tcf})
}

type tokenSrc struct {
	parent *TokenIssuer
	claims TokenClaimsFunc
}

func (t *tokenSrc) Token() (*oauth2.Token, error) {
	claims := t.claims()
	accessToken, err := t.parent.Sign(claims)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	if claims.ExpiresAt != nil {
		tok.Expiry = claims.ExpiresAt.Time
	}
	return tok, nil
}
