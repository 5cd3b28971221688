package core

// Block & receipt model (spec.md §3, §4.5). A block is a header, a block
// reward credited straight to the owner's wallet, an ordered list of
// receipts (one per included transaction, each carrying the effect log its
// script produced), and an optional signer pair — optional only in the
// sense that a freshly-built, not-yet-signed block has none.
//
// Grounded on core/security.go's ComputeMerkleRoot (narrowed here to a flat
// digest, since the spec has no Merkle proof consumer) and core/node.go's
// block-header hashing flow.

import "errors"

// Header is the fixed-size, hashable portion of a block.
type Header struct {
	Height       uint64
	PreviousHash [32]byte
	ReceiptRoot  [32]byte
	Timestamp    uint64 // unix millis
}

func (h Header) Encode(w *Writer) {
	w.PutU64(h.Height)
	w.PutRaw(h.PreviousHash[:])
	w.PutRaw(h.ReceiptRoot[:])
	w.PutU64(h.Timestamp)
}
func (h Header) ByteSize() int { return 8 + 32 + 32 + 8 }

func DecodeHeader(r *Reader) (Header, error) {
	var h Header
	height, err := r.GetU64()
	if err != nil {
		return h, err
	}
	prev, err := r.GetRaw(32)
	if err != nil {
		return h, err
	}
	root, err := r.GetRaw(32)
	if err != nil {
		return h, err
	}
	ts, err := r.GetU64()
	if err != nil {
		return h, err
	}
	h.Height = height
	copy(h.PreviousHash[:], prev)
	copy(h.ReceiptRoot[:], root)
	h.Timestamp = ts
	return h, nil
}

// Hash returns the digest of h's canonical encoding: the previous_hash of
// the block built on top of it, and the message a block's signer signs
// over.
func (h Header) Hash() [32]byte {
	return Sha256(Encode(h))
}

// Receipt is one included transaction plus the ordered effects its script
// produced (spec.md §3).
type Receipt struct {
	Tx  *Tx
	Log []Effect
}

func (r Receipt) Encode(w *Writer) {
	r.Tx.Encode(w)
	w.PutU16(uint16(len(r.Log)))
	for _, e := range r.Log {
		e.Encode(w)
	}
}
func (r Receipt) ByteSize() int {
	n := r.Tx.ByteSize() + 2
	for _, e := range r.Log {
		n += e.ByteSize()
	}
	return n
}

func DecodeReceipt(r *Reader) (Receipt, error) {
	var rc Receipt
	tx, err := DecodeTx(r)
	if err != nil {
		return rc, err
	}
	n, err := r.GetU16()
	if err != nil {
		return rc, err
	}
	log := make([]Effect, n)
	for i := range log {
		e, err := DecodeEffect(r)
		if err != nil {
			return rc, err
		}
		log[i] = e
	}
	rc.Tx = tx
	rc.Log = log
	return rc, nil
}

// calcReceiptRoot is the flat (non-Merkle) digest over a block's receipts:
// SHA-256 of their concatenated encodings, in order (spec.md §3).
func calcReceiptRoot(receipts []Receipt) [32]byte {
	total := 0
	for _, rc := range receipts {
		total += rc.ByteSize()
	}
	w := NewWriter(total)
	for _, rc := range receipts {
		rc.Encode(w)
	}
	return Sha256(w.Bytes())
}

// Block is the versioned, signed unit of replication and state transition.
// Block 0 is the genesis block and carries a zero PreviousHash.
type Block struct {
	Header   Header
	Rewards  Asset
	Receipts []Receipt
	Signer   *SigPair // nil until signed
}

func (b *Block) Encode(w *Writer) {
	b.Header.Encode(w)
	w.PutU64(uint64(b.Rewards.Raw))
	w.PutU32(uint32(len(b.Receipts)))
	for _, rc := range b.Receipts {
		rc.Encode(w)
	}
	if b.Signer != nil {
		w.PutU8(1)
		b.Signer.Encode(w)
	} else {
		w.PutU8(0)
	}
}

func (b *Block) ByteSize() int {
	n := b.Header.ByteSize() + 8 + 4
	for _, rc := range b.Receipts {
		n += rc.ByteSize()
	}
	n++ // signer presence flag
	if b.Signer != nil {
		n += b.Signer.ByteSize()
	}
	return n
}

// DecodeBlock reads a full block off r.
func DecodeBlock(r *Reader) (*Block, error) {
	b := &Block{}
	h, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	rewardsRaw, err := r.GetU64()
	if err != nil {
		return nil, err
	}
	n, err := r.GetU32()
	if err != nil {
		return nil, err
	}
	receipts := make([]Receipt, n)
	for i := range receipts {
		rc, err := DecodeReceipt(r)
		if err != nil {
			return nil, err
		}
		receipts[i] = rc
	}
	present, err := r.GetU8()
	if err != nil {
		return nil, err
	}
	b.Header = h
	b.Rewards = Asset{Raw: int64(rewardsRaw)}
	b.Receipts = receipts
	if present != 0 {
		sp, err := DecodeSigPair(r)
		if err != nil {
			return nil, err
		}
		b.Signer = &sp
	}
	return b, nil
}

// RecomputeReceiptRoot returns the receipt root implied by b's current
// receipts, for comparison against b.Header.ReceiptRoot during verification.
func (b *Block) RecomputeReceiptRoot() [32]byte {
	return calcReceiptRoot(b.Receipts)
}

// SignHeader signs b's header hash with key, populating Signer.
func (b *Block) SignHeader(key PrivateKey) {
	hash := b.Header.Hash()
	b.Signer = &SigPair{PublicKey: key.Public(), Signature: key.Sign(hash[:])}
}

// VerifySigner reports whether b's Signer, if present, is a valid signature
// over the header hash by the expected minter public key.
func (b *Block) VerifySigner(expectedMinter PublicKey) error {
	if b.Signer == nil {
		return errors.New("core: block has no signer")
	}
	if b.Signer.PublicKey != expectedMinter {
		return errors.New("core: block signer is not the current minter")
	}
	hash := b.Header.Hash()
	if !b.Signer.PublicKey.Verify(hash[:], b.Signer.Signature) {
		return errors.New("core: invalid block signature")
	}
	return nil
}

// zeroHash is the distinguished previous_hash value of the genesis block.
var zeroHash [32]byte
