package spdm

import "crypto/x509"

// CertPolicy is the pluggable root-of-trust capability handle spec.md
// §6.2 describes as `CertPolicy { verify_chain(leaf, chain, root_store)
// -> bool }`. GetCertificate (spec.md §4.2.3) calls it once the full
// chain for a slot has been assembled from its chunked response.
type CertPolicy interface {
	// VerifyChain reports whether leaf, together with the intermediate
	// chain that follows it, chains to a root this policy trusts. A
	// false return (or non-nil error) is surfaced to the caller as a
	// SecurityViolation, never retried.
	VerifyChain(leaf *x509.Certificate, chain []*x509.Certificate, slotID uint8) (bool, error)
}

// X509RootPolicy implements CertPolicy using the standard library's
// x509.CertPool chain verification, the closest pack analogue being
// dittofs's reliance on the stdlib/golang-jwt chain verifiers for its
// own TLS-adjacent certificate handling (see DESIGN.md) — no retrieved
// repo supplies a purpose-built SPDM certificate verifier, so this
// module grounds directly on crypto/x509.
type X509RootPolicy struct {
	Roots *x509.CertPool
}

var _ CertPolicy = X509RootPolicy{}

func (p X509RootPolicy) VerifyChain(leaf *x509.Certificate, chain []*x509.Certificate, slotID uint8) (bool, error) {
	intermediates := x509.NewCertPool()
	for _, c := range chain {
		intermediates.AddCert(c)
	}
	opts := x509.VerifyOptions{
		Roots:         p.Roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := leaf.Verify(opts); err != nil {
		return false, err
	}
	return true, nil
}
