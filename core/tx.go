package core

// Transaction model (spec.md §3, §4.3): a common header plus one of four
// tagged variants. TxId is the SHA-256 of the transaction's canonical
// encoding including its signature pairs, ordered as appended.
//
// Grounded on core/transactions.go's tagged-Transaction envelope, replacing
// its gas/nonce/ECDSA fields with the spec's fee/nonce/ed25519 model, and on
// core/account_and_balance_operations.go's Account bookkeeping shape.

import "errors"

// AccountId uniquely identifies a created account.
type AccountId uint64

// Permission/account size limits. Not named as explicit constants anywhere
// in the retrieved source material; chosen by the implementer and recorded
// here as the single source of truth.
const (
	MaxPermKeys              = 8
	ImmutableAccountThreshold = 0xFF
	MaxTxSignatures           = 8
	MaxMemoByteSize           = 512
)

// Permissions is the threshold-signature policy governing an account.
// Invariant: threshold <= len(keys) <= MaxPermKeys, OR threshold ==
// ImmutableAccountThreshold with an empty key list (a frozen account that
// can never be spent from again).
type Permissions struct {
	Threshold uint8
	Keys      []PublicKey
}

// Valid reports whether p satisfies the invariant above.
func (p Permissions) Valid() bool {
	if p.Threshold == ImmutableAccountThreshold {
		return len(p.Keys) == 0
	}
	return int(p.Threshold) <= len(p.Keys) && len(p.Keys) <= MaxPermKeys
}

func (p Permissions) Encode(w *Writer) {
	w.PutU8(p.Threshold)
	w.PutU8(uint8(len(p.Keys)))
	for _, k := range p.Keys {
		k.Encode(w)
	}
}
func (p Permissions) ByteSize() int { return 2 + len(p.Keys)*PublicKeySize }

func DecodePermissions(r *Reader) (Permissions, error) {
	var p Permissions
	threshold, err := r.GetU8()
	if err != nil {
		return p, err
	}
	n, err := r.GetU8()
	if err != nil {
		return p, err
	}
	keys := make([]PublicKey, n)
	for i := range keys {
		b, err := r.GetRaw(PublicKeySize)
		if err != nil {
			return p, err
		}
		copy(keys[i][:], b)
	}
	p.Threshold = threshold
	p.Keys = keys
	return p, nil
}

// Account is the indexer's record of one created account.
type Account struct {
	Id          AccountId
	Permissions Permissions
	Balance     Asset
	Destroyed   bool
}

func (a Account) Encode(w *Writer) {
	w.PutU64(uint64(a.Id))
	a.Permissions.Encode(w)
	w.PutU64(uint64(a.Balance.Raw))
	if a.Destroyed {
		w.PutU8(1)
	} else {
		w.PutU8(0)
	}
}
func (a Account) ByteSize() int { return 8 + a.Permissions.ByteSize() + 8 + 1 }

func DecodeAccount(r *Reader) (Account, error) {
	var a Account
	id, err := r.GetU64()
	if err != nil {
		return a, err
	}
	perms, err := DecodePermissions(r)
	if err != nil {
		return a, err
	}
	balRaw, err := r.GetU64()
	if err != nil {
		return a, err
	}
	destroyed, err := r.GetU8()
	if err != nil {
		return a, err
	}
	a.Id = AccountId(id)
	a.Permissions = perms
	a.Balance = Asset{Raw: int64(balRaw)}
	a.Destroyed = destroyed != 0
	return a, nil
}

// TxVariantTag identifies which of the four transaction kinds a Tx carries.
type TxVariantTag uint8

const (
	TxVariantOwner TxVariantTag = iota
	TxVariantMint
	TxVariantCreateAccount
	TxVariantTransfer
)

// OwnerData rotates the minter authority (spec.md §3).
type OwnerData struct {
	MinterPubKey PublicKey
	WalletHash   ScriptHash
	Script       []byte
}

func (d OwnerData) Encode(w *Writer) {
	d.MinterPubKey.Encode(w)
	d.WalletHash.Encode(w)
	w.PutBytes(d.Script)
}
func (d OwnerData) ByteSize() int { return PublicKeySize + 32 + 4 + len(d.Script) }

func decodeOwnerData(r *Reader) (OwnerData, error) {
	var d OwnerData
	pk, err := r.GetRaw(PublicKeySize)
	if err != nil {
		return d, err
	}
	wallet, err := DecodeScriptHash(r)
	if err != nil {
		return d, err
	}
	script, err := r.GetBytes()
	if err != nil {
		return d, err
	}
	copy(d.MinterPubKey[:], pk)
	d.WalletHash = wallet
	d.Script = script
	return d, nil
}

// MintData creates new tokens (spec.md §3).
type MintData struct {
	To             ScriptHash
	Amount         Asset
	Script         []byte
	Attachment     []byte
	AttachmentName string
}

func (d MintData) Encode(w *Writer) {
	d.To.Encode(w)
	w.PutU64(uint64(d.Amount.Raw))
	w.PutBytes(d.Script)
	w.PutBytes(d.Attachment)
	w.PutBytes([]byte(d.AttachmentName))
}
func (d MintData) ByteSize() int {
	return 32 + 8 + 4 + len(d.Script) + 4 + len(d.Attachment) + 4 + len(d.AttachmentName)
}

func decodeMintData(r *Reader) (MintData, error) {
	var d MintData
	to, err := DecodeScriptHash(r)
	if err != nil {
		return d, err
	}
	raw, err := r.GetU64()
	if err != nil {
		return d, err
	}
	script, err := r.GetBytes()
	if err != nil {
		return d, err
	}
	attach, err := r.GetBytes()
	if err != nil {
		return d, err
	}
	name, err := r.GetBytes()
	if err != nil {
		return d, err
	}
	d.To = to
	d.Amount = Asset{Raw: int64(raw)}
	d.Script = script
	d.Attachment = attach
	d.AttachmentName = string(name)
	return d, nil
}

// CreateAccountData provisions a new account, authorized by the creator's
// existing permissions over the new transaction's txid (spec.md §4.3).
type CreateAccountData struct {
	Creator AccountId
	Account Account
}

func (d CreateAccountData) Encode(w *Writer) {
	w.PutU64(uint64(d.Creator))
	d.Account.Encode(w)
}
func (d CreateAccountData) ByteSize() int { return 8 + d.Account.ByteSize() }

func decodeCreateAccountData(r *Reader) (CreateAccountData, error) {
	var d CreateAccountData
	creator, err := r.GetU64()
	if err != nil {
		return d, err
	}
	acct, err := DecodeAccount(r)
	if err != nil {
		return d, err
	}
	d.Creator = AccountId(creator)
	d.Account = acct
	return d, nil
}

// TransferData moves funds from one script hash, invoking call_fn of its
// own script to authorize the spend (Open Question #2, resolved in
// SPEC_FULL.md: call_fn names an OpDefine in the From script; args are
// type-checked against that function's declared parameter types).
type TransferData struct {
	From   ScriptHash
	To     ScriptHash
	CallFn uint8
	Args   []Frame
	Amount Asset
	Memo   string
	Script []byte
}

func (d TransferData) Encode(w *Writer) {
	d.From.Encode(w)
	d.To.Encode(w)
	w.PutU8(d.CallFn)
	w.PutU8(uint8(len(d.Args)))
	for _, f := range d.Args {
		encodeFrame(w, f)
	}
	w.PutU64(uint64(d.Amount.Raw))
	w.PutBytes([]byte(d.Memo))
	w.PutBytes(d.Script)
}
func (d TransferData) ByteSize() int {
	n := 32 + 32 + 1 + 1
	for _, f := range d.Args {
		n += frameByteSize(f)
	}
	return n + 8 + 4 + len(d.Memo) + 4 + len(d.Script)
}

func decodeTransferData(r *Reader) (TransferData, error) {
	var d TransferData
	from, err := DecodeScriptHash(r)
	if err != nil {
		return d, err
	}
	to, err := DecodeScriptHash(r)
	if err != nil {
		return d, err
	}
	fn, err := r.GetU8()
	if err != nil {
		return d, err
	}
	argc, err := r.GetU8()
	if err != nil {
		return d, err
	}
	args := make([]Frame, argc)
	for i := range args {
		f, err := decodeFrame(r)
		if err != nil {
			return d, err
		}
		args[i] = f
	}
	raw, err := r.GetU64()
	if err != nil {
		return d, err
	}
	memo, err := r.GetBytes()
	if err != nil {
		return d, err
	}
	script, err := r.GetBytes()
	if err != nil {
		return d, err
	}
	d.From = from
	d.To = to
	d.CallFn = fn
	d.Args = args
	d.Amount = Asset{Raw: int64(raw)}
	d.Memo = string(memo)
	d.Script = script
	return d, nil
}

// encodeFrame/decodeFrame/frameByteSize give Frame a wire form for args
// carried on a TransferData: one tag byte plus the variant payload.
func encodeFrame(w *Writer, f Frame) {
	w.PutU8(uint8(f.Kind))
	switch f.Kind {
	case ArgBool:
		if f.Bool {
			w.PutU8(1)
		} else {
			w.PutU8(0)
		}
	case ArgPubKey:
		f.PubKey.Encode(w)
	case ArgScriptHash:
		f.ScriptHash.Encode(w)
	case ArgAsset:
		w.PutU64(uint64(f.Asset.Raw))
	}
}

func frameByteSize(f Frame) int {
	switch f.Kind {
	case ArgBool:
		return 2
	case ArgPubKey:
		return 1 + PublicKeySize
	case ArgScriptHash:
		return 1 + 32
	case ArgAsset:
		return 1 + 8
	default:
		return 1
	}
}

func decodeFrame(r *Reader) (Frame, error) {
	kind, err := r.GetU8()
	if err != nil {
		return Frame{}, err
	}
	switch ArgType(kind) {
	case ArgBool:
		b, err := r.GetU8()
		if err != nil {
			return Frame{}, err
		}
		return boolFrame(b != 0), nil
	case ArgPubKey:
		b, err := r.GetRaw(PublicKeySize)
		if err != nil {
			return Frame{}, err
		}
		var pk PublicKey
		copy(pk[:], b)
		return pubKeyFrame(pk), nil
	case ArgScriptHash:
		sh, err := DecodeScriptHash(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: ArgScriptHash, ScriptHash: sh}, nil
	case ArgAsset:
		raw, err := r.GetU64()
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: ArgAsset, Asset: Asset{Raw: int64(raw)}}, nil
	default:
		return Frame{}, errors.New("core: unknown arg frame tag")
	}
}

// Tx is a transaction: a common header plus exactly one populated variant.
type Tx struct {
	Nonce          uint64
	Expiry         uint64 // unix millis
	Fee            Asset
	SignaturePairs []SigPair

	Variant       TxVariantTag
	Owner         *OwnerData
	Mint          *MintData
	CreateAccount *CreateAccountData
	Transfer      *TransferData
}

// TxSigPairs implements SignableTx.
func (tx *Tx) TxSigPairs() []SigPair { return tx.SignaturePairs }

// encodeHeaderAndVariant writes everything except SignaturePairs: the
// common header fields plus the tagged variant body.
func (tx *Tx) encodeHeaderAndVariant(w *Writer) {
	w.PutU64(tx.Nonce)
	w.PutU64(tx.Expiry)
	w.PutU64(uint64(tx.Fee.Raw))
	w.PutU8(uint8(tx.Variant))
	switch tx.Variant {
	case TxVariantOwner:
		tx.Owner.Encode(w)
	case TxVariantMint:
		tx.Mint.Encode(w)
	case TxVariantCreateAccount:
		tx.CreateAccount.Encode(w)
	case TxVariantTransfer:
		tx.Transfer.Encode(w)
	}
}

func (tx *Tx) headerAndVariantByteSize() int {
	n := 8 + 8 + 8 + 1
	switch tx.Variant {
	case TxVariantOwner:
		n += tx.Owner.ByteSize()
	case TxVariantMint:
		n += tx.Mint.ByteSize()
	case TxVariantCreateAccount:
		n += tx.CreateAccount.ByteSize()
	case TxVariantTransfer:
		n += tx.Transfer.ByteSize()
	}
	return n
}

// CanonicalEncodingNoSigs implements SignableTx: the bytes that
// OpCheckSig/OpCheckMultiSig verify signatures against.
func (tx *Tx) CanonicalEncodingNoSigs() []byte {
	w := NewWriter(tx.headerAndVariantByteSize())
	tx.encodeHeaderAndVariant(w)
	return w.Bytes()
}

// Encode writes the full transaction, header + variant + signature pairs,
// per spec.md §4.1's tagged-enum wire convention.
func (tx *Tx) Encode(w *Writer) {
	tx.encodeHeaderAndVariant(w)
	w.PutU8(uint8(len(tx.SignaturePairs)))
	for _, sp := range tx.SignaturePairs {
		sp.Encode(w)
	}
}

func (tx *Tx) ByteSize() int {
	return tx.headerAndVariantByteSize() + 1 + len(tx.SignaturePairs)*(PublicKeySize+SignatureSize)
}

// DecodeTx reads a full transaction off r.
func DecodeTx(r *Reader) (*Tx, error) {
	tx := &Tx{}
	nonce, err := r.GetU64()
	if err != nil {
		return nil, err
	}
	expiry, err := r.GetU64()
	if err != nil {
		return nil, err
	}
	feeRaw, err := r.GetU64()
	if err != nil {
		return nil, err
	}
	variant, err := r.GetU8()
	if err != nil {
		return nil, err
	}
	tx.Nonce = nonce
	tx.Expiry = expiry
	tx.Fee = Asset{Raw: int64(feeRaw)}
	tx.Variant = TxVariantTag(variant)

	switch tx.Variant {
	case TxVariantOwner:
		d, err := decodeOwnerData(r)
		if err != nil {
			return nil, err
		}
		tx.Owner = &d
	case TxVariantMint:
		d, err := decodeMintData(r)
		if err != nil {
			return nil, err
		}
		tx.Mint = &d
	case TxVariantCreateAccount:
		d, err := decodeCreateAccountData(r)
		if err != nil {
			return nil, err
		}
		tx.CreateAccount = &d
	case TxVariantTransfer:
		d, err := decodeTransferData(r)
		if err != nil {
			return nil, err
		}
		tx.Transfer = &d
	default:
		return nil, errors.New("core: unknown tx variant tag")
	}

	n, err := r.GetU8()
	if err != nil {
		return nil, err
	}
	sigs := make([]SigPair, n)
	for i := range sigs {
		sp, err := DecodeSigPair(r)
		if err != nil {
			return nil, err
		}
		sigs[i] = sp
	}
	tx.SignaturePairs = sigs
	return tx, nil
}

// TxId is the SHA-256 digest of a transaction's full canonical encoding,
// signatures included in append order (spec.md §4.3).
type TxId [32]byte

// ComputeTxId hashes tx's full encoding, including its signature pairs.
func ComputeTxId(tx *Tx) TxId {
	w := NewWriter(tx.ByteSize())
	tx.Encode(w)
	return TxId(Sha256(w.Bytes()))
}

func (id TxId) Encode(w *Writer) { w.PutRaw(id[:]) }
func (id TxId) ByteSize() int    { return 32 }

func DecodeTxId(r *Reader) (TxId, error) {
	var id TxId
	b, err := r.GetRaw(32)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

// TxPrecompData pairs a transaction with its precomputed txid (spec.md §3).
// The ledger, minter and block store compute txids with ComputeTxId and do
// not use this type.
type TxPrecompData struct {
	Tx   *Tx
	TxId TxId
}

// NewTxPrecompData computes and caches tx's id.
func NewTxPrecompData(tx *Tx) TxPrecompData {
	return TxPrecompData{Tx: tx, TxId: ComputeTxId(tx)}
}
