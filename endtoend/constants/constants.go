// Package constants defines the well-known aliases and fixture paths used
// across the end to end test cases.
package constants

import "path/filepath"

// User address aliases.
const (
	Albert        = "Albert"
	AlbertKey     = "Albert-key"
	Bertha        = "Bertha"
	BerthaKey     = "Bertha-key"
	Christel      = "Christel"
	ChristelKey   = "Christel-key"
	Daewon        = "Daewon"
	MatchmakerKey = "matchmaker-key"
)

// Native VP aliases.
const (
	GovernanceAddress = "governance"
)

// Fungible token aliases.
const (
	XAN = "XAN"
	BTC = "BTC"
	ETH = "ETH"
	DOT = "DOT"
)

// Bite-sized token aliases.
const (
	Schnitzel = "Schnitzel"
	Apfel     = "Apfel"
	Kartoffel = "Kartoffel"
)

// Paths to the WASMs used for tests, relative to the working dir.
const (
	TxTransferWasm     = "wasm/tx_transfer.wasm"
	VPUserWasm         = "wasm/vp_user.wasm"
	TxNoOpWasm         = "wasm_for_tests/tx_no_op.wasm"
	TxInitProposalWasm = "wasm_for_tests/tx_init_proposal.wasm"
	TxWriteStorageKey  = "wasm_for_tests/tx_write_storage_key.wasm"
	VPAlwaysTrueWasm   = "wasm_for_tests/vp_always_true.wasm"
	VPAlwaysFalseWasm  = "wasm_for_tests/vp_always_false.wasm"
	TxMintTokensWasm   = "wasm_for_tests/tx_mint_tokens.wasm"
	TxProposalCodeWasm = "wasm_for_tests/tx_proposal_code.wasm"
	MMTokenExchWasm    = "wasm/mm_token_exch.wasm"
	TxFromIntentWasm   = "wasm/tx_from_intent.wasm"
)

// WasmAbsPath resolves one of the WASM fixture paths above against the
// test's working dir.
func WasmAbsPath(workingDir, fileName string) string {
	return filepath.Join(workingDir, fileName)
}
