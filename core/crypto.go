package core

// Ed25519 keys, detached signatures and the digest primitives used
// throughout the ledger: SHA-256 and double-SHA-256.
//
// Grounded on core/wallet.go's ed25519-only key model and
// core/security.go's double-SHA256 ComputeMerkleRoot technique.

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

const (
	PublicKeySize  = ed25519.PublicKeySize  // 32
	PrivateKeySize = ed25519.SeedSize       // 32, the seed; the expanded key is derived on demand
	SignatureSize  = ed25519.SignatureSize  // 64
)

// PublicKey is a raw 32-byte ed25519 public key.
type PublicKey [PublicKeySize]byte

// PrivateKey is a 32-byte ed25519 seed. The expanded signing key is derived
// from it lazily so the zero-value type stays small and comparable.
type PrivateKey [PrivateKeySize]byte

// Signature is a detached 64-byte ed25519 signature.
type Signature [SignatureSize]byte

// SigPair is a public key paired with the signature it produced, ordered as
// appended to a transaction (spec.md §3).
type SigPair struct {
	PublicKey PublicKey
	Signature Signature
}

// GenerateKeyPair returns a fresh ed25519 seed and its public key, using
// crypto/rand as the teacher's wallet.go does for NewRandomWallet.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PrivateKey{}, PublicKey{}, err
	}
	var sk PrivateKey
	var pk PublicKey
	copy(sk[:], priv.Seed())
	copy(pk[:], pub)
	return sk, pk, nil
}

// Public derives the public key for a private key seed.
func (sk PrivateKey) Public() PublicKey {
	priv := ed25519.NewKeyFromSeed(sk[:])
	var pk PublicKey
	copy(pk[:], priv[ed25519.SeedSize:])
	return pk
}

// Sign produces a detached signature over msg.
func (sk PrivateKey) Sign(msg []byte) Signature {
	priv := ed25519.NewKeyFromSeed(sk[:])
	var sig Signature
	copy(sig[:], ed25519.Sign(priv, msg))
	return sig
}

// Verify reports whether sig is a valid ed25519 signature by pk over msg.
func (pk PublicKey) Verify(msg []byte, sig Signature) bool {
	return ed25519.Verify(pk[:], msg, sig[:])
}

// Sha256 returns the single SHA-256 digest of b.
func Sha256(b []byte) [32]byte { return sha256.Sum256(b) }

// DoubleSha256 returns SHA-256(SHA-256(b)), used by the address checksum
// (§6.4). The block hash uses the single Sha256.
func DoubleSha256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

var errKeySize = errors.New("core: wrong key/signature length")

func (pk *PublicKey) UnmarshalBytes(b []byte) error {
	if len(b) != PublicKeySize {
		return errKeySize
	}
	copy(pk[:], b)
	return nil
}

func (sig *Signature) UnmarshalBytes(b []byte) error {
	if len(b) != SignatureSize {
		return errKeySize
	}
	copy(sig[:], b)
	return nil
}

// Encode / ByteSize implement Encodable for PublicKey: a 32-byte inline
// push, used verbatim by OpPushPubkey (§4.2) and SigPair encoding.
func (pk PublicKey) Encode(w *Writer) { w.PutRaw(pk[:]) }
func (pk PublicKey) ByteSize() int    { return PublicKeySize }

func (sig Signature) Encode(w *Writer) { w.PutRaw(sig[:]) }
func (sig Signature) ByteSize() int    { return SignatureSize }

func (sp SigPair) Encode(w *Writer) {
	sp.PublicKey.Encode(w)
	sp.Signature.Encode(w)
}
func (sp SigPair) ByteSize() int { return PublicKeySize + SignatureSize }

// DecodeSigPair reads one SigPair off r.
func DecodeSigPair(r *Reader) (SigPair, error) {
	var sp SigPair
	pk, err := r.GetRaw(PublicKeySize)
	if err != nil {
		return sp, err
	}
	sig, err := r.GetRaw(SignatureSize)
	if err != nil {
		return sp, err
	}
	copy(sp.PublicKey[:], pk)
	copy(sp.Signature[:], sig)
	return sp, nil
}
