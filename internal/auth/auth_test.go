package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacyToken_RoundTrip(t *testing.T) {
	token, err := GenerateLegacyToken("secret", "user-1", "a@b.c", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateLegacyToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@b.c", claims.Email)
	assert.Equal(t, legacyIssuer, claims.Issuer)
}

func TestLegacyToken_Expiry(t *testing.T) {
	forever, err := GenerateLegacyToken("secret", "user-1", "", 0)
	require.NoError(t, err)
	claims, err := ValidateLegacyToken(forever, "secret")
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)

	expired, err := GenerateLegacyToken("secret", "user-1", "", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateLegacyToken(expired, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestLegacyToken_Rejects(t *testing.T) {
	good, err := GenerateLegacyToken("secret", "user-1", "", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateLegacyToken("secret", "user-1", "", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", good, "other"},
		{"expired", expired, "secret"},
		{"garbage", "not-a-token", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateLegacyToken(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}

	_, err = GenerateLegacyToken("", "user-1", "", 0)
	assert.ErrorIs(t, err, jwt.ErrInvalidKey)
}

// newIssuer serves a discovery document and a JWKS holding key under kid "test".
func newIssuer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":   srv.URL,
			"jwks_uri": srv.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		pub := key.PublicKey
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test"
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestOIDCVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newIssuer(t, key)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	verifier, err := NewOIDCVerifier(ctx, srv.URL, "artworkup")
	require.NoError(t, err)

	valid := func(aud string) Claims {
		return Claims{
			UserID: "user-1",
			Email:  "a@b.c",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    srv.URL,
				Audience:  jwt.ClaimStrings{aud},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	claims, err := verifier.Validate(signRS256(t, key, valid("artworkup")))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	_, err = verifier.Validate(signRS256(t, key, valid("someone-else")))
	assert.Error(t, err)

	noExpiry := valid("artworkup")
	noExpiry.ExpiresAt = nil
	_, err = verifier.Validate(signRS256(t, key, noExpiry))
	assert.Error(t, err)

	wrongIssuer := valid("artworkup")
	wrongIssuer.Issuer = "https://elsewhere.example"
	_, err = verifier.Validate(signRS256(t, key, wrongIssuer))
	assert.Error(t, err)
}

func TestNewOIDCVerifier_DiscoveryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"issuer":"x"}`))
	}))
	defer srv.Close()

	_, err := NewOIDCVerifier(context.Background(), srv.URL, "")
	assert.ErrorContains(t, err, "jwks_uri not found")

	_, err = NewOIDCVerifier(context.Background(), "", "")
	assert.Error(t, err)
}
