package core

// ScriptHash / Address encoding (spec.md §3, §6.4): a 32-byte digest of a
// script doubles as the owning identity of a balance. For display, a
// public-key or private-key blob is tagged, checksummed with the first 4
// bytes of a double-SHA-256, and base-58 encoded; public keys additionally
// carry the ASCII prefix "GOD".
//
// Grounded on core/wallet.go's address-derivation pipeline, switched from
// SHA-256/ripemd-160 to the spec's double-SHA-256 checksum, and on
// core/security.go's ComputeMerkleRoot for the double-hash technique.

import (
	"errors"

	"github.com/mr-tron/base58"
)

// ScriptHash is the 32-byte digest of a script; it is the spending
// identity used as an Account's owning address.
type ScriptHash [32]byte

// HashScript returns the ScriptHash of a script's byte encoding.
func HashScript(script []byte) ScriptHash {
	return ScriptHash(Sha256(script))
}

func (h ScriptHash) Encode(w *Writer) { w.PutRaw(h[:]) }
func (h ScriptHash) ByteSize() int    { return 32 }

func DecodeScriptHash(r *Reader) (ScriptHash, error) {
	var h ScriptHash
	b, err := r.GetRaw(32)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

const (
	pubKeyWifTag  byte   = 0x02
	privKeyWifTag byte   = 0x01
	addressPrefix string = "GOD"
	checksumLen   int    = 4
)

// toWif encodes a prefixed, checksummed blob as base58, per §6.4.
func toWif(tag byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+checksumLen)
	buf = append(buf, tag)
	buf = append(buf, payload...)
	sum := DoubleSha256(buf)
	buf = append(buf, sum[:checksumLen]...)
	return base58.Encode(buf)
}

func fromWif(tag byte, s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) < 1+checksumLen {
		return nil, errors.New("core: wif too short")
	}
	if raw[0] != tag {
		return nil, errors.New("core: wif tag mismatch")
	}
	payload := raw[1 : len(raw)-checksumLen]
	checksum := raw[len(raw)-checksumLen:]
	sum := DoubleSha256(raw[:len(raw)-checksumLen])
	for i := 0; i < checksumLen; i++ {
		if sum[i] != checksum[i] {
			return nil, errors.New("core: wif checksum mismatch")
		}
	}
	return payload, nil
}

// PublicKeyToAddress renders a public key as a "GOD"-prefixed base58
// wallet address: tag 0x02 || 32-byte key || checksum.
func PublicKeyToAddress(pk PublicKey) string {
	return addressPrefix + toWif(pubKeyWifTag, pk[:])
}

// AddressToPublicKey is the inverse of PublicKeyToAddress.
func AddressToPublicKey(addr string) (PublicKey, error) {
	var pk PublicKey
	if len(addr) <= len(addressPrefix) || addr[:len(addressPrefix)] != addressPrefix {
		return pk, errors.New("core: missing address prefix")
	}
	payload, err := fromWif(pubKeyWifTag, addr[len(addressPrefix):])
	if err != nil {
		return pk, err
	}
	if err := pk.UnmarshalBytes(payload); err != nil {
		return pk, err
	}
	return pk, nil
}

// PrivateKeyToWif renders a private key seed as base58 with no ASCII
// prefix: tag 0x01 || 32-byte seed || checksum.
func PrivateKeyToWif(sk PrivateKey) string {
	return toWif(privKeyWifTag, sk[:])
}

// WifToPrivateKey is the inverse of PrivateKeyToWif.
func WifToPrivateKey(wif string) (PrivateKey, error) {
	var sk PrivateKey
	payload, err := fromWif(privKeyWifTag, wif)
	if err != nil {
		return sk, err
	}
	if len(payload) != PrivateKeySize {
		return sk, errKeySize
	}
	copy(sk[:], payload)
	return sk, nil
}
