// =============================
// File: internal/amm/raydium/constants.go
// =============================
package raydium

import (
	"github.com/gagliardetto/solana-go"
)

// Program IDs
var (
	AmmV4ProgramID         = solana.MPK("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	OpenBookProgramID      = solana.MPK("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	CreatePoolFeeAddress   = solana.MPK("7YttLkHDoNj9wyDur5pM1ejNaAvT9X4eqaYcHQqtj2G5")
	TokenProgramID         = solana.TokenProgramID
	AssociatedTokenProgram = solana.SPLAssociatedTokenAccountProgramID
	SystemProgramID        = solana.SystemProgramID
	SysvarRentPubkey       = solana.SysVarRentPubkey
	WrappedSolMint         = solana.SolMint
)

// Instruction tags
const (
	InstructionInitialize2 uint8 = 1

	// 1 (tag) + 1 (nonce) + 8 (open_time) + 8 (init_pc_amount) + 8 (init_coin_amount)
	Initialize2DataSize = 26
	Initialize2Accounts = 21
)
