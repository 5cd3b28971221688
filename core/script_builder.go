package core

// BuildSingleSigScript constructs the minimal wallet script accepted by the
// eval loop for a lone signing key: a single zero-argument function (fn_id
// 0) that pushes the key, then requires a matching signature (spec.md
// §4.2's OpCheckSig). This is the script every freshly generated keypair is
// given as its wallet by default.
func BuildSingleSigScript(pk PublicKey) []byte {
	w := NewWriter(3 + 1 + PublicKeySize + 1)
	w.PutU8(uint8(OpDefine))
	w.PutU8(0) // fn_id
	w.PutU8(0) // arg_count
	w.PutU8(uint8(OpPushPubKey))
	w.PutRaw(pk[:])
	w.PutU8(uint8(OpCheckSig))
	return w.Bytes()
}
