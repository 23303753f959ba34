package spdm

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Hasher constructs a fresh, unkeyed hash.Hash, matching the
// constructor shape of crypto/sha256.New and crypto/sha512.New. A
// HashAlgorithm maps to one via CryptoProvider.Hasher.
type Hasher func() hash.Hash

// CryptoProvider is the pluggable crypto capability handle spec.md §6.2
// describes as `Crypto { hash_new/update/final/dup, hmac, hkdf,
// aead_encrypt, aead_decrypt, verify_signature }`. It is held by the
// connection as a weak reference for the connection's lifetime
// (spec.md §3.4) and must be re-entrant and stateless apart from
// internally held hash-context state (spec.md §5).
type CryptoProvider interface {
	// Hasher returns a constructor for the given negotiated hash
	// algorithm, or an error wrapping Unsupported if this provider does
	// not implement it.
	Hasher(alg HashAlgorithm) (Hasher, error)

	// HMAC computes an HMAC over data keyed by key, using the hash
	// algorithm alg.
	HMAC(alg HashAlgorithm, key, data []byte) ([]byte, error)

	// HKDFExpand derives outLen bytes from secret using HKDF-Expand
	// (RFC 5869) with the given info/label, keyed to hash algorithm alg.
	// The caller is responsible for any HKDF-Extract step; this module's
	// derivations pass the shared secret (or the current key) directly as
	// the pseudorandom key and carry the transcript hash in info, matching
	// the original's single-step "bin_concat" expand-only construction.
	HKDFExpand(alg HashAlgorithm, secret, info []byte, outLen int) ([]byte, error)

	// AEADSeal encrypts plaintext with the given AEAD algorithm, key, and
	// nonce, returning ciphertext||tag in a newly allocated slice.
	AEADSeal(alg AEADAlgorithm, key, nonce, plaintext, aad []byte) ([]byte, error)

	// AEADOpen authenticates and decrypts ciphertext (which includes the
	// trailing tag). A tag mismatch is reported as a SecurityViolation
	// Error, never masked or retried (spec.md §7).
	AEADOpen(alg AEADAlgorithm, key, nonce, ciphertext, aad []byte) ([]byte, error)

	// VerifySignature verifies sig over message under the asymmetric
	// algorithm alg and the responder's public key pub (an ed25519.PublicKey,
	// *rsa.PublicKey or *ecdsa.PublicKey depending on alg, extracted by the
	// caller from the certificate chain or raw-public-key slot).
	VerifySignature(alg AsymAlgo, pub any, message, sig []byte) error
}

// DefaultCryptoProvider implements CryptoProvider using only the Go
// standard library plus golang.org/x/crypto/hkdf, the combination the
// pack's protocol repos (go-smb2's session.go for HMAC/AEAD,
// avahowell-occlude's crypto.go for HKDF) reach for. SM3 and
// ChaCha20-Poly1305 are named on the wire (see internal/wire/algorithms.go)
// but have no implementation here: the pack supplies no library for
// either (see DESIGN.md).
type DefaultCryptoProvider struct{}

var _ CryptoProvider = DefaultCryptoProvider{}

func (DefaultCryptoProvider) Hasher(alg HashAlgorithm) (Hasher, error) {
	switch alg {
	case HashSHA256:
		return sha256.New, nil
	case HashSHA384:
		return sha512.New384, nil
	case HashSHA512:
		return sha512.New, nil
	default:
		return nil, newError(Unsupported, "Hasher", fmt.Sprintf("hash algorithm %v has no default provider", alg))
	}
}

func (p DefaultCryptoProvider) HMAC(alg HashAlgorithm, key, data []byte) ([]byte, error) {
	h, err := p.Hasher(alg)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(h, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

func (p DefaultCryptoProvider) HKDFExpand(alg HashAlgorithm, secret, info []byte, outLen int) ([]byte, error) {
	h, err := p.Hasher(alg)
	if err != nil {
		return nil, err
	}
	r := hkdf.Expand(h, secret, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, wrapError(Unsupported, "HKDFExpand", "short HKDF read", err)
	}
	return out, nil
}

func (DefaultCryptoProvider) AEADSeal(alg AEADAlgorithm, key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

func (DefaultCryptoProvider) AEADOpen(alg AEADAlgorithm, key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, wrapError(SecurityViolation, "AEADOpen", "AEAD tag verification failed", err)
	}
	return pt, nil
}

func newAEAD(alg AEADAlgorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AEADAESGCM128, AEADAESGCM256:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, wrapError(Unsupported, "newAEAD", "invalid AES key", err)
		}
		return cipher.NewGCM(block)
	default:
		return nil, newError(Unsupported, "newAEAD", fmt.Sprintf("AEAD algorithm %v has no default provider", alg))
	}
}

func (DefaultCryptoProvider) VerifySignature(alg AsymAlgo, pub any, message, sig []byte) error {
	switch alg {
	case AsymEd25519:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return newError(SecurityViolation, "VerifySignature", "public key type mismatch for Ed25519")
		}
		if !ed25519.Verify(key, message, sig) {
			return newError(SecurityViolation, "VerifySignature", "Ed25519 signature verification failed")
		}
		return nil
	case AsymRSASSA3072:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return newError(SecurityViolation, "VerifySignature", "public key type mismatch for RSA")
		}
		digest := sha256.Sum256(message)
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
			return wrapError(SecurityViolation, "VerifySignature", "RSA signature verification failed", err)
		}
		return nil
	case AsymECDSAP256, AsymECDSAP384:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return newError(SecurityViolation, "VerifySignature", "public key type mismatch for ECDSA")
		}
		digest := sha256.Sum256(message)
		if !ecdsa.VerifyASN1(key, digest[:], sig) {
			return newError(SecurityViolation, "VerifySignature", "ECDSA signature verification failed")
		}
		return nil
	default:
		return newError(Unsupported, "VerifySignature", fmt.Sprintf("signature algorithm %v has no default provider", alg))
	}
}
