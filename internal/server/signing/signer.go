// Package signing produces and checks signatures over daily root
// commitments. The keypair is injected configuration; when a key half is
// missing the service degrades explicitly instead of pretending.
package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/server/models"
)

// Result labels the output of Sign so an unsigned commitment can never pass
// as a cryptographically verified one.
type Result struct {
	// Signature is base64 ed25519 output, or the bare input hash when
	// Alg is "unsigned".
	Signature string
	Alg       string
}

// Service signs root hashes with ed25519. Either key half may be absent.
type Service struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// New builds a Service from base64-encoded key material. Empty strings mean
// "not configured". A private key given as a 32-byte seed is expanded.
func New(privB64, pubB64 string) (*Service, error) {
	s := &Service{}

	if privB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(privB64)
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
		switch len(raw) {
		case ed25519.SeedSize:
			s.priv = ed25519.NewKeyFromSeed(raw)
		case ed25519.PrivateKeySize:
			s.priv = ed25519.PrivateKey(raw)
		default:
			return nil, fmt.Errorf("private key must be %d or %d bytes, got %d",
				ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
		}
	}

	if pubB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(pubB64)
		if err != nil {
			return nil, fmt.Errorf("decode public key: %w", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
		}
		s.pub = ed25519.PublicKey(raw)
	} else if s.priv != nil {
		s.pub = s.priv.Public().(ed25519.PublicKey)
	}

	return s, nil
}

// CanSign reports whether a private key is configured.
func (s *Service) CanSign() bool { return s.priv != nil }

// CanVerify reports whether a public key is configured.
func (s *Service) CanVerify() bool { return s.pub != nil }

// Sign signs the hex root hash. Without a private key it returns the hash
// itself labeled "unsigned"; callers must carry the label through.
func (s *Service) Sign(rootHash string) (Result, error) {
	if !s.CanSign() {
		return Result{Signature: rootHash, Alg: models.SigAlgUnsigned}, nil
	}

	msg, err := hex.DecodeString(rootHash)
	if err != nil {
		return Result{}, fmt.Errorf("decode root hash: %w", err)
	}
	sig := ed25519.Sign(s.priv, msg)
	return Result{
		Signature: base64.StdEncoding.EncodeToString(sig),
		Alg:       models.SigAlgEd25519,
	}, nil
}

// Verify checks an ed25519 signature over the hex root hash. Fails closed
// with ErrVerificationUnavailable when no public key is configured.
func (s *Service) Verify(rootHash, signature string) (bool, error) {
	if !s.CanVerify() {
		return false, common.ErrVerificationUnavailable
	}

	msg, err := hex.DecodeString(rootHash)
	if err != nil {
		return false, fmt.Errorf("decode root hash: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	return ed25519.Verify(s.pub, msg, sig), nil
}
