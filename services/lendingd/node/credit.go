package node

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"quadlend/crypto"
)

// ErrInvalidAttestation wraps every rejected credit proof.
var ErrInvalidAttestation = errors.New("credit: invalid attestation")

// CreditVerifierConfig names the attester whose signed score tokens are
// accepted as credit proofs.
type CreditVerifierConfig struct {
	Secret string
	Issuer string
}

type creditClaims struct {
	Score *uint64 `json:"score"`
	jwt.RegisteredClaims
}

// CreditVerifier checks HS256 score attestations. The proof is the compact
// token; its subject must be the account and its score claim 0..100.
type CreditVerifier struct {
	secret []byte
	issuer string
	nowFn  func() time.Time
}

// NewCreditVerifier returns nil when no attester secret is configured.
func NewCreditVerifier(cfg CreditVerifierConfig, now func() time.Time) *CreditVerifier {
	if cfg.Secret == "" {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &CreditVerifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer, nowFn: now}
}

// VerifyScore implements lending.CreditVerifier.
func (v *CreditVerifier) VerifyScore(account crypto.Address, proof []byte) (uint8, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.nowFn),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &creditClaims{}
	if _, err := jwt.ParseWithClaims(string(proof), claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidAttestation, err)
	}
	subject, err := crypto.ParseAddress(claims.Subject)
	if err != nil || subject != account {
		return 0, fmt.Errorf("%w: subject does not match account", ErrInvalidAttestation)
	}
	if claims.Score == nil || *claims.Score > 100 {
		return 0, fmt.Errorf("%w: score out of range", ErrInvalidAttestation)
	}
	return uint8(*claims.Score), nil
}
