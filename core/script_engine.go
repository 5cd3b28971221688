package core

// Deterministic, bounded-size stack VM for signature-checking scripts
// (spec.md §4.2). No time, no randomness, no I/O: two nodes evaluating the
// same (tx, script, fn_id, args) always produce the same (result,
// effect_log, final_stack).
//
// Grounded on core/opcode_dispatcher.go's doc-banner style and
// core/vm_opcodes.go's opcode list, narrowed from a dynamically-registered
// 24-bit instruction space to the spec's closed, fixed opcode set, plus the
// branch-scanning/OpCheckMultiSig semantics of original_source's
// crates/godcoin/src/godcoin/script/engine.rs.

import (
	"errors"
)

// EvalErrType is the taxonomy of script evaluation failures (spec.md §7).
type EvalErrType uint8

const (
	ErrUnexpectedEOF EvalErrType = iota
	ErrUnknownOp
	ErrInvalidItemOnStack
	ErrScriptRetFalse
	ErrArithmetic
)

func (t EvalErrType) String() string {
	switch t {
	case ErrUnexpectedEOF:
		return "UnexpectedEOF"
	case ErrUnknownOp:
		return "UnknownOp"
	case ErrInvalidItemOnStack:
		return "InvalidItemOnStack"
	case ErrScriptRetFalse:
		return "ScriptRetFalse"
	case ErrArithmetic:
		return "Arithmetic"
	default:
		return "Unknown"
	}
}

// EvalErr carries the byte position within the script at which evaluation
// failed, per spec.md §4.2 step 9.
type EvalErr struct {
	Pos int
	Typ EvalErrType
}

func (e *EvalErr) Error() string {
	return "script eval at byte " + itoa(e.Pos) + ": " + e.Typ.String()
}

func newEvalErr(pos int, typ EvalErrType) *EvalErr { return &EvalErr{Pos: pos, Typ: typ} }

// itoa avoids pulling in strconv for a one-line formatter used only in
// error text.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}

// EffectKind tags one entry in a receipt's effect log (spec.md §3).
type EffectKind uint8

const (
	EffectTransfer EffectKind = iota
)

// Effect is one entry appended to a receipt's log during script evaluation.
// Only Transfer exists today; the kind tag keeps the format extensible.
type Effect struct {
	Kind   EffectKind
	To     ScriptHash
	Amount Asset
}

func (e Effect) Encode(w *Writer) {
	w.PutU8(uint8(e.Kind))
	e.To.Encode(w)
	w.PutU64(uint64(e.Amount.Raw))
}
func (e Effect) ByteSize() int { return 1 + 32 + 8 }

func DecodeEffect(r *Reader) (Effect, error) {
	var e Effect
	kind, err := r.GetU8()
	if err != nil {
		return e, err
	}
	to, err := DecodeScriptHash(r)
	if err != nil {
		return e, err
	}
	raw, err := r.GetU64()
	if err != nil {
		return e, err
	}
	e.Kind = EffectKind(kind)
	e.To = to
	e.Amount = Asset{Raw: int64(raw)}
	return e, nil
}

// Frame is one operand-stack slot: a tagged union of the four argument
// types a script can push or declare (spec.md §4.2).
type Frame struct {
	Kind       ArgType
	Bool       bool
	PubKey     PublicKey
	ScriptHash ScriptHash
	Asset      Asset
}

func boolFrame(b bool) Frame       { return Frame{Kind: ArgBool, Bool: b} }
func pubKeyFrame(pk PublicKey) Frame { return Frame{Kind: ArgPubKey, PubKey: pk} }

// SignableTx is the minimal surface the engine needs from a transaction:
// its canonical encoding with signatures stripped (what OpCheckSig/
// OpCheckMultiSig verify against) and its appended signature pairs.
type SignableTx interface {
	CanonicalEncodingNoSigs() []byte
	TxSigPairs() []SigPair
}

// Engine evaluates one script function against one transaction.
type Engine struct {
	tx     SignableTx
	script []byte
	stack  []Frame
	budget *Asset // remaining transferable amount; nil if this tx never transfers
	log    []Effect
}

// NewEngine constructs an Engine, rejecting scripts over MaxScriptByteSize
// (spec.md §4.2 step 8).
func NewEngine(tx SignableTx, script []byte, budget *Asset) (*Engine, error) {
	if len(script) > MaxScriptByteSize {
		return nil, errors.New("core: script exceeds MaxScriptByteSize")
	}
	return &Engine{tx: tx, script: script, budget: budget}, nil
}

// Eval runs the function identified by fnID with the given args and returns
// its effect log, or an EvalErr.
//
// Per spec.md §4.2 step 2: args are pushed onto the stack in declaration
// order after being type-checked against the target OpDefine's declared
// arg_types; a mismatch fails with InvalidItemOnStack at position 0.
func (e *Engine) Eval(fnID uint8, args []Frame) ([]Effect, error) {
	body, argTypes, err := e.findFunction(fnID)
	if err != nil {
		return nil, err
	}
	if len(argTypes) != len(args) {
		return nil, newEvalErr(0, ErrInvalidItemOnStack)
	}
	for i, want := range argTypes {
		if args[i].Kind != want {
			return nil, newEvalErr(0, ErrInvalidItemOnStack)
		}
	}
	e.stack = append(e.stack, args...)
	e.log = nil

	result, err := e.run(body)
	if err != nil {
		return nil, err
	}
	if !result {
		return nil, newEvalErr(len(e.script), ErrScriptRetFalse)
	}
	return e.log, nil
}

// findFunction scans the script for an OpDefine header naming fnID and
// returns the instruction bytes that follow it, up to the next top-level
// OpDefine or end of script (spec.md §4.2: "a script is a sequence of
// functions keyed by one-byte id").
func (e *Engine) findFunction(fnID uint8) (body []byte, argTypes []ArgType, err error) {
	pos := 0
	for pos < len(e.script) {
		op := e.script[pos]
		start := pos
		if op != byte(OpDefine) {
			return nil, nil, newEvalErr(pos, ErrUnknownOp)
		}
		pos++
		if pos+2 > len(e.script) {
			return nil, nil, newEvalErr(start, ErrUnexpectedEOF)
		}
		id := e.script[pos]
		pos++
		argc := int(e.script[pos])
		pos++
		if pos+argc > len(e.script) {
			return nil, nil, newEvalErr(start, ErrUnexpectedEOF)
		}
		types := make([]ArgType, argc)
		for i := 0; i < argc; i++ {
			types[i] = ArgType(e.script[pos])
			pos++
		}
		bodyStart := pos
		for pos < len(e.script) && e.script[pos] != byte(OpDefine) {
			pos++
		}
		if id == fnID {
			return e.script[bodyStart:pos], types, nil
		}
	}
	return nil, nil, newEvalErr(len(e.script), ErrUnknownOp)
}

// run executes one function body to completion and returns its boolean
// termination value.
func (e *Engine) run(body []byte) (bool, error) {
	pos := 0
	ifDepth := 0

	for pos < len(body) {
		opPos := pos
		op := Opcode(body[pos])
		pos++

		switch op {
		case OpPushFalse:
			e.stack = append(e.stack, boolFrame(false))
		case OpPushTrue:
			e.stack = append(e.stack, boolFrame(true))
		case OpPushPubKey:
			if pos+PublicKeySize > len(body) {
				return false, newEvalErr(opPos, ErrUnexpectedEOF)
			}
			var pk PublicKey
			copy(pk[:], body[pos:pos+PublicKeySize])
			pos += PublicKeySize
			e.stack = append(e.stack, pubKeyFrame(pk))

		case OpNot:
			b, err := e.popBool(opPos)
			if err != nil {
				return false, err
			}
			e.stack = append(e.stack, boolFrame(!b))

		case OpIf:
			ifDepth++
			taken, err := e.popBool(opPos)
			if err != nil {
				return false, err
			}
			if taken {
				continue
			}
			// Skip to the matching OpElse or OpEndIf, scanning forward and
			// counting nested OpIf/OpEndIf (spec.md §4.2 step 3).
			newPos, err := skipBranch(body, pos, ifDepth, true)
			if err != nil {
				return false, newEvalErr(opPos, err.(*EvalErr).Typ)
			}
			pos = newPos
			if Opcode(body[pos-1]) == OpEndIf {
				// No else branch: the skip consumed the matching OpEndIf.
				ifDepth--
			}

		case OpElse:
			// Reached only when the taken (true) branch fell through to its
			// own OpElse; skip the else-branch body to the matching OpEndIf.
			newPos, err := skipBranch(body, pos, ifDepth, false)
			if err != nil {
				return false, newEvalErr(opPos, err.(*EvalErr).Typ)
			}
			pos = newPos
			ifDepth--

		case OpEndIf:
			ifDepth--

		case OpReturn:
			return e.popBool(opPos)

		case OpCheckSig:
			pk, err := e.popPubKey(opPos)
			if err != nil {
				return false, err
			}
			msg := e.tx.CanonicalEncodingNoSigs()
			ok := false
			for _, pair := range e.tx.TxSigPairs() {
				if pair.PublicKey == pk {
					ok = pair.PublicKey.Verify(msg, pair.Signature)
					break
				}
			}
			e.stack = append(e.stack, boolFrame(ok))

		case OpCheckMultiSig, OpCheckMultiSigFastFail:
			if pos+2 > len(body) {
				return false, newEvalErr(opPos, ErrUnexpectedEOF)
			}
			threshold := body[pos]
			keyCount := body[pos+1]
			pos += 2

			keys := make([]PublicKey, keyCount)
			for i := 0; i < int(keyCount); i++ {
				pk, err := e.popPubKey(opPos)
				if err != nil {
					return false, err
				}
				keys[i] = pk
			}

			var result bool
			if threshold == 0 {
				result = true
			} else if int(threshold) > int(keyCount) {
				result = false
			} else {
				msg := e.tx.CanonicalEncodingNoSigs()
				sigPairs := e.tx.TxSigPairs()
				matched := 0
				for _, key := range keys {
					for _, pair := range sigPairs {
						if pair.PublicKey == key {
							if key.Verify(msg, pair.Signature) {
								matched++
							}
							break
						}
					}
				}
				result = matched >= int(threshold)
			}

			if !result && op == OpCheckMultiSigFastFail {
				return false, newEvalErr(opPos, ErrScriptRetFalse)
			}
			e.stack = append(e.stack, boolFrame(result))

		case OpTransfer:
			amount, err := e.popAsset(opPos)
			if err != nil {
				return false, err
			}
			to, err := e.popScriptHash(opPos)
			if err != nil {
				return false, err
			}
			if amount.IsNegative() {
				return false, newEvalErr(opPos, ErrArithmetic)
			}
			if e.budget == nil {
				return false, newEvalErr(opPos, ErrArithmetic)
			}
			remaining, err := e.budget.Sub(amount)
			if err != nil || remaining.IsNegative() {
				return false, newEvalErr(opPos, ErrArithmetic)
			}
			*e.budget = remaining
			e.log = append(e.log, Effect{Kind: EffectTransfer, To: to, Amount: amount})

		default:
			return false, newEvalErr(opPos, ErrUnknownOp)
		}
	}

	if ifDepth > 0 {
		return false, newEvalErr(len(body), ErrUnexpectedEOF)
	}
	return e.popBool(len(body))
}

// skipBranch scans forward from pos counting nested OpIf/OpEndIf until it
// finds the OpElse or OpEndIf matching the branch opened at ifDepth. When
// wantElseOrEndIf is true it stops at either; otherwise (already inside an
// else) it stops only at the matching OpEndIf.
func skipBranch(body []byte, pos, ifDepth int, wantElseOrEndIf bool) (int, error) {
	depth := ifDepth
	for pos < len(body) {
		op := Opcode(body[pos])
		switch op {
		case OpIf:
			depth++
			pos++
		case OpElse:
			pos++
			if wantElseOrEndIf && depth == ifDepth {
				return pos, nil
			}
		case OpEndIf:
			if depth == ifDepth {
				return pos + 1, nil
			}
			depth--
			pos++
		case OpPushPubKey:
			pos += 1 + PublicKeySize
		case OpCheckMultiSig, OpCheckMultiSigFastFail:
			pos += 3
		default:
			pos++
		}
	}
	return 0, newEvalErr(len(body), ErrUnexpectedEOF)
}

func (e *Engine) pop(pos int) (Frame, error) {
	if len(e.stack) == 0 {
		return Frame{}, newEvalErr(pos, ErrInvalidItemOnStack)
	}
	f := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return f, nil
}

func (e *Engine) popBool(pos int) (bool, error) {
	f, err := e.pop(pos)
	if err != nil {
		return false, err
	}
	if f.Kind != ArgBool {
		return false, newEvalErr(pos, ErrInvalidItemOnStack)
	}
	return f.Bool, nil
}

func (e *Engine) popPubKey(pos int) (PublicKey, error) {
	f, err := e.pop(pos)
	if err != nil {
		return PublicKey{}, err
	}
	if f.Kind != ArgPubKey {
		return PublicKey{}, newEvalErr(pos, ErrInvalidItemOnStack)
	}
	return f.PubKey, nil
}

func (e *Engine) popScriptHash(pos int) (ScriptHash, error) {
	f, err := e.pop(pos)
	if err != nil {
		return ScriptHash{}, err
	}
	if f.Kind != ArgScriptHash {
		return ScriptHash{}, newEvalErr(pos, ErrInvalidItemOnStack)
	}
	return f.ScriptHash, nil
}

func (e *Engine) popAsset(pos int) (Asset, error) {
	f, err := e.pop(pos)
	if err != nil {
		return Asset{}, err
	}
	if f.Kind != ArgAsset {
		return Asset{}, newEvalErr(pos, ErrInvalidItemOnStack)
	}
	return f.Asset, nil
}
