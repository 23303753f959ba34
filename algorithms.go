package spdm

import "github.com/raghuncstate/go-spdm/internal/wire"

// HashAlgorithm, AEADAlgorithm, AsymAlgo, DHEAlgo, and KeySchedule are
// the connection's negotiated-algorithm types. They are aliases of the
// wire package's bitmask types so that a single set of named constants
// serves both wire encoding (internal/wire/algorithms.go) and the
// exported CryptoProvider/Connection API, without a duplicate enum to
// keep in sync.
type (
	HashAlgorithm = wire.HashAlgo
	AEADAlgorithm = wire.AEADAlgo
	AsymAlgo      = wire.AsymAlgo
	DHEAlgorithm  = wire.DHEAlgo
	KeySchedule   = wire.KeySchedule
)

const (
	HashSHA256 = wire.HashSHA256
	HashSHA384 = wire.HashSHA384
	HashSHA512 = wire.HashSHA512
	HashSM3    = wire.HashSM3

	AsymRSASSA3072 = wire.AsymRSASSA3072
	AsymECDSAP256  = wire.AsymECDSAP256
	AsymECDSAP384  = wire.AsymECDSAP384
	AsymEd25519    = wire.AsymEdDSA25519

	DHESECP256R1 = wire.DHESECP256R1
	DHESECP384R1 = wire.DHESECP384R1
	DHEX25519    = wire.DHEX25519

	AEADAESGCM128        = wire.AEADAES128GCM
	AEADAESGCM256        = wire.AEADAES256GCM
	AEADChaCha20Poly1305 = wire.AEADChaCha20Poly1305

	KeyScheduleSPDM = wire.KeyScheduleSPDM
)

// HashSize reports the digest size in bytes for a negotiated hash
// algorithm, used to size fixed fields (cert-chain hash, verify-data
// HMAC) when decoding responses.
func HashSize(alg HashAlgorithm) (int, error) {
	switch alg {
	case HashSHA256:
		return 32, nil
	case HashSHA384:
		return 48, nil
	case HashSHA512:
		return 64, nil
	default:
		return 0, newError(Unsupported, "HashSize", "hash algorithm has no known digest size")
	}
}

// SignatureSize reports the asymmetric signature size in bytes for a
// negotiated signature algorithm.
func SignatureSize(alg AsymAlgo) (int, error) {
	switch alg {
	case AsymRSASSA3072:
		return 384, nil
	case AsymECDSAP256:
		return 64, nil
	case AsymECDSAP384:
		return 96, nil
	case AsymEd25519:
		return 64, nil
	default:
		return 0, newError(Unsupported, "SignatureSize", "signature algorithm has no known size")
	}
}

// DHEPublicKeySize reports the DHE public key (exchange data) size in
// bytes for a negotiated key-exchange group.
func DHEPublicKeySize(alg DHEAlgorithm) (int, error) {
	switch alg {
	case DHESECP256R1:
		return 64, nil
	case DHESECP384R1:
		return 96, nil
	case DHEX25519:
		return 32, nil
	default:
		return 0, newError(Unsupported, "DHEPublicKeySize", "DHE group has no known public key size")
	}
}
