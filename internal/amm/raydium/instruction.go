// =============================
// File: internal/amm/raydium/instruction.go
// =============================
package raydium

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Initialize2Params - данные инструкции initialize2.
type Initialize2Params struct {
	Nonce          uint8
	OpenTime       uint64
	InitPcAmount   uint64
	InitCoinAmount uint64
}

// Initialize2AccountSet содержит все аккаунты инструкции initialize2 в порядке программы.
type Initialize2AccountSet struct {
	// Аккаунты пула
	Amm          solana.PublicKey
	AmmAuthority solana.PublicKey
	OpenOrders   solana.PublicKey
	LPMint       solana.PublicKey
	CoinMint     solana.PublicKey
	PcMint       solana.PublicKey
	CoinVault    solana.PublicKey
	PcVault      solana.PublicKey
	TargetOrders solana.PublicKey
	AmmConfig    solana.PublicKey
	FeeReceiver  solana.PublicKey

	// Маркет
	MarketProgram solana.PublicKey
	Market        solana.PublicKey

	// Аккаунты владельца исходных средств
	UserWallet    solana.PublicKey
	UserTokenCoin solana.PublicKey
	UserTokenPc   solana.PublicKey
	UserTokenLP   solana.PublicKey
}

func (a Initialize2AccountSet) validate() error {
	for _, check := range []struct {
		key  solana.PublicKey
		name string
	}{
		{a.Amm, "amm"},
		{a.AmmAuthority, "amm authority"},
		{a.OpenOrders, "open orders"},
		{a.LPMint, "lp mint"},
		{a.CoinMint, "coin mint"},
		{a.PcMint, "pc mint"},
		{a.CoinVault, "coin vault"},
		{a.PcVault, "pc vault"},
		{a.TargetOrders, "target orders"},
		{a.AmmConfig, "amm config"},
		{a.FeeReceiver, "fee receiver"},
		{a.MarketProgram, "market program"},
		{a.Market, "market"},
		{a.UserWallet, "user wallet"},
		{a.UserTokenCoin, "user coin account"},
		{a.UserTokenPc, "user pc account"},
		{a.UserTokenLP, "user lp account"},
	} {
		if check.key.IsZero() {
			return fmt.Errorf("%s is required", check.name)
		}
	}
	return nil
}

func (a Initialize2AccountSet) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.Meta(TokenProgramID),
		solana.Meta(AssociatedTokenProgram),
		solana.Meta(SystemProgramID),
		solana.Meta(SysvarRentPubkey),
		solana.Meta(a.Amm).WRITE(),
		solana.Meta(a.AmmAuthority),
		solana.Meta(a.OpenOrders).WRITE(),
		solana.Meta(a.LPMint).WRITE(),
		solana.Meta(a.CoinMint),
		solana.Meta(a.PcMint),
		solana.Meta(a.CoinVault).WRITE(),
		solana.Meta(a.PcVault).WRITE(),
		solana.Meta(a.TargetOrders).WRITE(),
		solana.Meta(a.AmmConfig),
		solana.Meta(a.FeeReceiver).WRITE(),
		solana.Meta(a.MarketProgram),
		solana.Meta(a.Market),
		solana.Meta(a.UserWallet).WRITE().SIGNER(),
		solana.Meta(a.UserTokenCoin).WRITE(),
		solana.Meta(a.UserTokenPc).WRITE(),
		solana.Meta(a.UserTokenLP).WRITE(),
	}
}

// initialize2Data - borsh-раскладка данных initialize2.
type initialize2Data struct {
	Tag            uint8
	Nonce          uint8
	OpenTime       uint64
	InitPcAmount   uint64
	InitCoinAmount uint64
}

// EncodeInitialize2 сериализует данные инструкции (borsh, little-endian).
func EncodeInitialize2(p Initialize2Params) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(initialize2Data{
		Tag:            InstructionInitialize2,
		Nonce:          p.Nonce,
		OpenTime:       p.OpenTime,
		InitPcAmount:   p.InitPcAmount,
		InitCoinAmount: p.InitCoinAmount,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeInitialize2 parses instruction data produced by EncodeInitialize2.
func DecodeInitialize2(data []byte) (Initialize2Params, error) {
	if len(data) != Initialize2DataSize {
		return Initialize2Params{}, fmt.Errorf("initialize2 data: want %d bytes, got %d", Initialize2DataSize, len(data))
	}
	var raw initialize2Data
	if err := bin.NewBorshDecoder(data).Decode(&raw); err != nil {
		return Initialize2Params{}, fmt.Errorf("decode initialize2: %w", err)
	}
	if raw.Tag != InstructionInitialize2 {
		return Initialize2Params{}, fmt.Errorf("unexpected instruction tag %d", raw.Tag)
	}
	return Initialize2Params{
		Nonce:          raw.Nonce,
		OpenTime:       raw.OpenTime,
		InitPcAmount:   raw.InitPcAmount,
		InitCoinAmount: raw.InitCoinAmount,
	}, nil
}

// BuildInitialize2Instruction создаёт инструкцию initialize2 программы AMM.
func BuildInitialize2Instruction(programID solana.PublicKey, accounts Initialize2AccountSet, params Initialize2Params) (solana.Instruction, error) {
	if programID.IsZero() {
		return nil, fmt.Errorf("amm program is required")
	}
	if err := accounts.validate(); err != nil {
		return nil, fmt.Errorf("invalid accounts: %w", err)
	}
	data, err := EncodeInitialize2(params)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize instruction data: %w", err)
	}
	return solana.NewInstruction(programID, accounts.metas(), data), nil
}
