package core

// Error taxonomy (spec.md §7): named kinds, not an open-ended error string.
// Codec errors abort the current message; these ledger-level errors abort
// the current block/tx and are surfaced to the caller unchanged; a
// WriteBatch.Commit error (core/indexer.go) is treated as fatal separately.

import "fmt"

// TxErrKind enumerates why a transaction failed validation.
type TxErrKind uint8

const (
	TxErrTooManySignatures TxErrKind = iota
	TxErrTxTooLarge
	TxErrInvalidFeeAmount
	TxErrInvalidAmount
	TxErrScriptHashMismatch
	TxErrScriptEval
	TxErrArithmetic
	TxErrAccountAlreadyExists
	TxErrAccountNotFound
	TxErrInvalidAccountPermissions
)

func (k TxErrKind) String() string {
	switch k {
	case TxErrTooManySignatures:
		return "TooManySignatures"
	case TxErrTxTooLarge:
		return "TxTooLarge"
	case TxErrInvalidFeeAmount:
		return "InvalidFeeAmount"
	case TxErrInvalidAmount:
		return "InvalidAmount"
	case TxErrScriptHashMismatch:
		return "ScriptHashMismatch"
	case TxErrScriptEval:
		return "ScriptEval"
	case TxErrArithmetic:
		return "Arithmetic"
	case TxErrAccountAlreadyExists:
		return "AccountAlreadyExists"
	case TxErrAccountNotFound:
		return "AccountNotFound"
	case TxErrInvalidAccountPermissions:
		return "InvalidAccountPermissions"
	default:
		return "Unknown"
	}
}

// TxErr wraps a TxErrKind with the underlying EvalErr when the kind is
// TxErrScriptEval.
type TxErr struct {
	Kind TxErrKind
	Eval *EvalErr
}

func (e *TxErr) Error() string {
	if e.Eval != nil {
		return fmt.Sprintf("tx: %s: %s", e.Kind, e.Eval.Error())
	}
	return "tx: " + e.Kind.String()
}

func newTxErr(kind TxErrKind) *TxErr { return &TxErr{Kind: kind} }

func newTxEvalErr(err error) *TxErr {
	if ee, ok := err.(*EvalErr); ok {
		return &TxErr{Kind: TxErrScriptEval, Eval: ee}
	}
	return &TxErr{Kind: TxErrArithmetic}
}

// BlockErrKind enumerates why a block failed validation.
type BlockErrKind uint8

const (
	BlockErrInvalidBlockHeight BlockErrKind = iota
	BlockErrInvalidReceiptRoot
	BlockErrInvalidPrevHash
	BlockErrInvalidSignature
	BlockErrTx
)

func (k BlockErrKind) String() string {
	switch k {
	case BlockErrInvalidBlockHeight:
		return "InvalidBlockHeight"
	case BlockErrInvalidReceiptRoot:
		return "InvalidReceiptRoot"
	case BlockErrInvalidPrevHash:
		return "InvalidPrevHash"
	case BlockErrInvalidSignature:
		return "InvalidSignature"
	case BlockErrTx:
		return "Tx"
	default:
		return "Unknown"
	}
}

// BlockErr wraps a BlockErrKind with the underlying TxErr when the kind is
// BlockErrTx.
type BlockErr struct {
	Kind BlockErrKind
	Tx   *TxErr
}

func (e *BlockErr) Error() string {
	if e.Tx != nil {
		return fmt.Sprintf("block: %s: %s", e.Kind, e.Tx.Error())
	}
	return "block: " + e.Kind.String()
}

func newBlockErr(kind BlockErrKind) *BlockErr { return &BlockErr{Kind: kind} }

func newBlockTxErr(err *TxErr) *BlockErr { return &BlockErr{Kind: BlockErrTx, Tx: err} }
