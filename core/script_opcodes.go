package core

// Fixed opcode set for the signature-script VM (spec.md §4.2). The set is
// closed: unlike the teacher's 24-bit, dynamically-registered opcode space
// (core/opcode_dispatcher.go), every opcode here is a single byte and every
// handler is a case in script_engine.go's eval loop — there is no
// Register()/Dispatch() table, because the spec has no smart-contract
// generality to register against (spec.md §1 non-goals).
//
// Grounded on core/vm_opcodes.go's flat `iota`-constant style.

// Opcode identifies one instruction in a script byte sequence.
type Opcode uint8

const (
	OpPushFalse Opcode = iota
	OpPushTrue
	OpPushPubKey // followed by 32 inline bytes
	OpNot
	OpIf
	OpElse
	OpEndIf
	OpReturn
	OpCheckSig
	OpCheckMultiSig         // followed by threshold u8, key_count u8
	OpCheckMultiSigFastFail // same as OpCheckMultiSig but false aborts eval
	OpTransfer
	OpDefine // followed by fn_id u8, arg_count u8, arg_count x ArgType u8
)

// ArgType tags the type of one declared function argument / stack frame.
type ArgType uint8

const (
	ArgBool ArgType = iota
	ArgPubKey
	ArgScriptHash
	ArgAsset
)

// MaxScriptByteSize bounds every constructible script (spec.md §4.2 step 8).
const MaxScriptByteSize = 2048
