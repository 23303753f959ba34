package spdm

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// alwaysTrustCertPolicy accepts any certificate chain, so tests can
// exercise GetCertificate without standing up a real PKI.
type alwaysTrustCertPolicy struct{}

func (alwaysTrustCertPolicy) VerifyChain(leaf *x509.Certificate, chain []*x509.Certificate, slotID uint8) (bool, error) {
	return true, nil
}

func negotiatedAlgorithmsConnection(transport *scriptedTransport) *Connection {
	conn := newTestConnection(transport)
	conn.state = AfterCapabilities
	conn.selectedVersion = wire.Version12
	return conn
}

func buildAlgorithmsResponse(hash wire.HashAlgo, asym wire.AsymAlgo, dhe wire.DHEAlgo, aead wire.AEADAlgo) []byte {
	buf := make([]byte, wire.HeaderSize+16)
	wire.Header{SPDMVersion: wire.Version12, RequestResponseCode: wire.Algorithms}.Encode(buf)
	off := wire.HeaderSize + 2
	putU32At(buf, off, uint32(asym))
	putU32At(buf, off+4, uint32(hash))
	putU16At(buf, off+8, uint16(dhe))
	putU16At(buf, off+10, uint16(aead))
	putU16At(buf, off+12, uint16(wire.KeyScheduleSPDM))
	return buf
}

func putU32At(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

func putU16At(buf []byte, off int, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}

func TestNegotiateAlgorithms_HappyPath(t *testing.T) {
	resp := buildAlgorithmsResponse(wire.HashSHA256, wire.AsymECDSAP256, wire.DHESECP256R1, wire.AEADAES128GCM)
	transport := &scriptedTransport{steps: []scriptedStep{{reply: resp}}}
	conn := negotiatedAlgorithmsConnection(transport)

	info, err := conn.NegotiateAlgorithms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HashSHA256, info.Hash)
	assert.Equal(t, AsymECDSAP256, info.Asym)
	assert.Equal(t, DHESECP256R1, info.DHE)
	assert.Equal(t, AEADAESGCM128, info.AEAD)
	assert.Equal(t, AfterNegotiateAlgorithms, conn.State())
}

func TestNegotiateAlgorithms_MultiBitSelectionIsFatal(t *testing.T) {
	resp := buildAlgorithmsResponse(wire.HashSHA256|wire.HashSHA384, wire.AsymECDSAP256, wire.DHESECP256R1, wire.AEADAES128GCM)
	transport := &scriptedTransport{steps: []scriptedStep{{reply: resp}}}
	conn := negotiatedAlgorithmsConnection(transport)

	_, err := conn.NegotiateAlgorithms(context.Background())
	require.Error(t, err)
	assert.Equal(t, DeviceError, KindOf(err))
}

func TestNegotiateAlgorithms_RequiresCapabilitiesFloor(t *testing.T) {
	conn := newTestConnection(&scriptedTransport{})
	_, err := conn.NegotiateAlgorithms(context.Background())
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

func negotiatedConnection(transport *scriptedTransport) *Connection {
	conn := newTestConnection(transport)
	conn.state = AfterNegotiateAlgorithms
	conn.selectedVersion = wire.Version12
	conn.hashAlgo = HashSHA256
	conn.asymAlgo = AsymEd25519
	return conn
}

func buildDigestsResponse(mask uint8, digest []byte) []byte {
	buf := make([]byte, wire.HeaderSize+len(digest))
	wire.Header{SPDMVersion: wire.Version12, RequestResponseCode: wire.Digests, Param2: mask}.Encode(buf)
	copy(buf[wire.HeaderSize:], digest)
	return buf
}

func TestGetDigests_HappyPath(t *testing.T) {
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}
	resp := buildDigestsResponse(1, digest)
	transport := &scriptedTransport{steps: []scriptedStep{{reply: resp}}}
	conn := negotiatedConnection(transport)

	info, err := conn.GetDigests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(1), info.SlotMask)
	assert.Equal(t, digest, info.Digests[0])
	assert.Equal(t, AfterDigests, conn.State())
}

func TestGetDigests_RequiresAlgorithmsFloor(t *testing.T) {
	conn := newTestConnection(&scriptedTransport{})
	_, err := conn.GetDigests(context.Background())
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

// selfSignedEd25519Cert builds a minimal self-signed leaf certificate
// for exercising the certificate-chain assembly and verification path.
func selfSignedEd25519Cert(t *testing.T) (*x509.Certificate, ed25519.PrivateKey, []byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "spdm-test-leaf"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, priv, der
}

func digestsConnection(transport *scriptedTransport) *Connection {
	conn := negotiatedConnection(transport)
	conn.state = AfterDigests
	conn.certPolicy = alwaysTrustCertPolicy{}
	return conn
}

func buildCertificateChunkResponse(portion []byte, remainderLen uint16) []byte {
	buf := make([]byte, wire.HeaderSize+4+len(portion))
	wire.Header{SPDMVersion: wire.Version12, RequestResponseCode: wire.Certificate}.Encode(buf)
	putU16At(buf, wire.HeaderSize, uint16(len(portion)))
	putU16At(buf, wire.HeaderSize+2, remainderLen)
	copy(buf[wire.HeaderSize+4:], portion)
	return buf
}

func TestGetCertificate_ChunkedLoopAssemblesFullChain(t *testing.T) {
	_, _, der := selfSignedEd25519Cert(t)
	hashSize := 32
	full := append(make([]byte, 4), make([]byte, hashSize)...)
	full = append(full, der...)

	chunkSize := 64
	var steps []scriptedStep
	for off := 0; off < len(full); off += chunkSize {
		end := off + chunkSize
		if end > len(full) {
			end = len(full)
		}
		remainder := uint16(len(full) - end)
		steps = append(steps, scriptedStep{reply: buildCertificateChunkResponse(full[off:end], remainder)})
	}

	transport := &scriptedTransport{steps: steps}
	conn := digestsConnection(transport)

	info, err := conn.GetCertificate(context.Background(), 0, uint16(chunkSize))
	require.NoError(t, err)
	assert.Len(t, info.Chain, 1)
	assert.Equal(t, AfterCertificate, conn.State())
	assert.Len(t, transport.sent, len(steps))
}

func TestGetCertificate_RequiresDigestsFloor(t *testing.T) {
	conn := negotiatedConnection(&scriptedTransport{})
	_, err := conn.GetCertificate(context.Background(), 0, 64)
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

func buildChallengeAuthResponse(certHash []byte, nonce [wire.NonceSize]byte, signKey ed25519.PrivateKey, transcriptPrefix, reqBytes []byte) []byte {
	bodyNoSig := make([]byte, wire.HeaderSize+len(certHash)+wire.NonceSize+2)
	wire.Header{SPDMVersion: wire.Version12, RequestResponseCode: wire.ChallengeAuth}.Encode(bodyNoSig)
	off := wire.HeaderSize
	copy(bodyNoSig[off:], certHash)
	off += len(certHash)
	copy(bodyNoSig[off:], nonce[:])
	off += wire.NonceSize
	// opaque length left as 0

	message := append(append(append([]byte{}, transcriptPrefix...), reqBytes...), bodyNoSig...)
	sig := ed25519.Sign(signKey, message)
	return append(bodyNoSig, sig...)
}

func certifiedConnection(transport *scriptedTransport, cert *x509.Certificate) *Connection {
	conn := negotiatedConnection(transport)
	conn.state = AfterCertificate
	conn.peerCertificates = map[uint8][]*x509.Certificate{0: {cert}}
	return conn
}

func TestChallenge_HappyPathVerifiesSignature(t *testing.T) {
	cert, priv, _ := selfSignedEd25519Cert(t)
	certHash := make([]byte, 32)
	var nonce [wire.NonceSize]byte

	// The fake responder signs over the transcript including the exact
	// request bytes the connection sent, mirroring what a real responder
	// would do.
	var capturedReq []byte
	transport := &capturingThenScriptedTransport{}
	conn := certifiedConnection(&scriptedTransport{}, cert)
	conn.transport = transport

	transport.respond = func(reqBytes []byte) []byte {
		capturedReq = reqBytes
		prefix := conn.combinedTranscript(TranscriptA1, TranscriptB)
		return buildChallengeAuthResponse(certHash, nonce, priv, prefix, reqBytes)
	}

	info, err := conn.Challenge(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, capturedReq)
	assert.Equal(t, AfterAuthenticate, conn.State())
	assert.NotNil(t, info)
}

func TestChallenge_RequiresCertificateFloor(t *testing.T) {
	conn := negotiatedConnection(&scriptedTransport{})
	_, err := conn.Challenge(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

func TestChallenge_BadSignatureFailsVerification(t *testing.T) {
	cert, _, _ := selfSignedEd25519Cert(t)
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	transport := &capturingThenScriptedTransport{}
	conn := certifiedConnection(&scriptedTransport{}, cert)
	conn.transport = transport

	certHash := make([]byte, 32)
	var nonce [wire.NonceSize]byte
	transport.respond = func(reqBytes []byte) []byte {
		prefix := conn.combinedTranscript(TranscriptA1, TranscriptB)
		return buildChallengeAuthResponse(certHash, nonce, otherPriv, prefix, reqBytes)
	}

	_, err = conn.Challenge(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Equal(t, SecurityViolation, KindOf(err))
}

func TestChallenge_RawPublicKeySlotVerifiesSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	transport := &capturingThenScriptedTransport{}
	conn := negotiatedConnection(&scriptedTransport{})
	conn.state = AfterCertificate
	conn.SetPeerRawPublicKey(0xFF, pub)
	conn.transport = transport

	certHash := make([]byte, 32)
	var nonce [wire.NonceSize]byte
	transport.respond = func(reqBytes []byte) []byte {
		prefix := conn.combinedTranscript(TranscriptA1, TranscriptB)
		return buildChallengeAuthResponse(certHash, nonce, priv, prefix, reqBytes)
	}

	info, err := conn.Challenge(context.Background(), 0xFF, 0)
	require.NoError(t, err)
	assert.NotNil(t, info)
	assert.Equal(t, AfterAuthenticate, conn.State())
}

func TestChallenge_UnresolvedSlotIsUnsupported(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	transport := &capturingThenScriptedTransport{}
	conn := negotiatedConnection(&scriptedTransport{})
	conn.state = AfterCertificate
	conn.transport = transport

	certHash := make([]byte, 32)
	var nonce [wire.NonceSize]byte
	transport.respond = func(reqBytes []byte) []byte {
		prefix := conn.combinedTranscript(TranscriptA1, TranscriptB)
		return buildChallengeAuthResponse(certHash, nonce, priv, prefix, reqBytes)
	}

	// Slot 0xFF has no certificate chain and no raw public key
	// provisioned via SetPeerRawPublicKey, so there is nothing to verify
	// the (otherwise well-formed) response's signature against.
	_, err = conn.Challenge(context.Background(), 0xFF, 0)
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

// capturingThenScriptedTransport hands the exact request bytes to a
// caller-supplied responder function, so tests can compute a response
// (e.g. a signature) that depends on what was actually sent.
type capturingThenScriptedTransport struct {
	respond func(reqBytes []byte) []byte
	last    []byte
}

func (c *capturingThenScriptedTransport) Send(ctx context.Context, sessionID *uint32, payload []byte, timeout time.Duration) error {
	c.last = append([]byte{}, payload...)
	return nil
}

func (c *capturingThenScriptedTransport) Receive(ctx context.Context, sessionID *uint32, timeout time.Duration) ([]byte, error) {
	return c.respond(c.last), nil
}
