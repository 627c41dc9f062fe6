// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package multisig

import (
	"github.com/btcsuite/btcd/txscript"
)

// ScriptInfo is the result of parsing raw script bytes as an m-of-n
// CHECKMULTISIG script. When IsMultisig is false the remaining fields are
// zero.
type ScriptInfo struct {
	// IsMultisig reports whether the script is a well-formed multisig
	// script.
	IsMultisig bool

	// M is the number of required signatures.
	M int

	// N is the total number of public keys.
	N int

	// PubKeys holds the public keys in script order.
	PubKeys [][]byte
}

// scriptElement is one decompiled script token: its opcode and, for push
// operations, the pushed data.
type scriptElement struct {
	opcode byte
	data   []byte
}

// ParseScript decompiles raw script bytes and recovers the multisig
// parameters from them. Witness scripts arrive as untrusted bytes inside
// PSBT input data, so the parse is deliberately defensive: the script must
// end in CHECKMULTISIG (or its VERIFY form), m and n must be small-integer
// opcodes or raw integers in the 1-16 range, and the number of 33- or
// 65-byte elements between them must equal n exactly. Anything else is
// reported as not multisig.
func ParseScript(script []byte) *ScriptInfo {
	notMultisig := &ScriptInfo{}

	var elements []scriptElement
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		elements = append(elements, scriptElement{
			opcode: tokenizer.Opcode(),
			data:   tokenizer.Data(),
		})
	}
	if tokenizer.Err() != nil {
		return notMultisig
	}

	// The smallest possible multisig script is m, one key, n and the
	// terminal opcode.
	if len(elements) < 4 {
		return notMultisig
	}

	terminal := elements[len(elements)-1].opcode
	if terminal != txscript.OP_CHECKMULTISIG &&
		terminal != txscript.OP_CHECKMULTISIGVERIFY {

		return notMultisig
	}

	m, ok := asSmallInt(elements[0])
	if !ok {
		return notMultisig
	}

	n, ok := asSmallInt(elements[len(elements)-2])
	if !ok || m > n {
		return notMultisig
	}

	var pubKeys [][]byte
	for _, element := range elements[1 : len(elements)-2] {
		size := len(element.data)
		if size == 33 || size == 65 {
			pubKeys = append(pubKeys, element.data)
		}
	}

	if len(pubKeys) != n {
		return notMultisig
	}

	return &ScriptInfo{
		IsMultisig: true,
		M:          m,
		N:          n,
		PubKeys:    pubKeys,
	}
}

// asSmallInt interprets a script element as an integer in the 1-16 range,
// accepting both the OP_1 through OP_16 opcodes and a single-byte push of a
// raw integer in that range.
func asSmallInt(element scriptElement) (int, bool) {
	op := element.opcode
	if op >= txscript.OP_1 && op <= txscript.OP_16 {
		return int(op-txscript.OP_1) + 1, true
	}

	if len(element.data) == 1 {
		value := int(element.data[0])
		if value >= 1 && value <= 16 {
			return value, true
		}
	}

	return 0, false
}
