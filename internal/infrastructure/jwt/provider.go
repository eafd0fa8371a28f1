package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-verification-nosql/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

const ticketAudience = "registration"

// Claims is the registration ticket issued once an email's code is verified.
type Claims struct {
	Email         string `json:"email"`
	Key           string `json:"key"`
	ClientID      string `json:"client_id,omitempty"`
	Referer       string `json:"referer,omitempty"`
	ReturnURL     string `json:"return_url,omitempty"`
	TrafficSource string `json:"traffic_source,omitempty"`
	jwt.RegisteredClaims
}

// Provider signs and verifies RS256 registration tickets.
type Provider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	expiry     time.Duration
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubBytes, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return &Provider{privateKey: privKey, publicKey: pubKey, expiry: cfg.JWTExpiry}, nil
}

// NewEphemeralProvider signs with a key generated in memory. Tickets do not
// survive a restart; meant for local development without key files.
func NewEphemeralProvider(expiry time.Duration) (*Provider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Provider{privateKey: key, publicKey: &key.PublicKey, expiry: expiry}, nil
}

// Sign issues a ticket for c. Registered claims are filled in here.
func (p *Provider) Sign(c Claims) (string, error) {
	now := time.Now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.Email,
		Audience:  jwt.ClaimStrings{ticketAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	return token.SignedString(p.privateKey)
}

func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.publicKey, nil
	}, jwt.WithAudience(ticketAudience), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
