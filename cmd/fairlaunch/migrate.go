package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/amm/raydium"
	"github.com/rovshanmuradov/fairlaunch/internal/authority"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/migration"
)

var errNoSender = errors.New("no transaction sender configured")

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <mint>",
		Short: "Print the Raydium AMM v4 initialize2 instruction for a pool stored in Postgres",
		Long: "Builds the initialize2 instruction that migrates the pool and writes it to stdout\n" +
			"for submission under the program authority. The stored pool is not changed.",
		Args: cobra.ExactArgs(1),
		RunE: runMigrate,
	}
	cmd.Flags().Uint64("init-base", 0, "base amount seeded into the AMM, 0 applies the graduation policy")
	cmd.Flags().String("market", "", "OpenBook market of the pair, empty derives a placeholder")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := cmd.Context()
	cfg := rt.cfg

	mint, err := solana.PublicKeyFromBase58(args[0])
	if err != nil {
		return fmt.Errorf("invalid mint: %w", err)
	}
	initBase, _ := cmd.Flags().GetUint64("init-base")
	marketFlag, _ := cmd.Flags().GetString("market")

	pg, err := rt.postgres(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	signer, err := authority.NewSigner(cfg.Program)
	if err != nil {
		return err
	}
	nonce, err := rt.nonce()
	if err != nil {
		return err
	}
	address, _, err := authority.DerivePool(cfg.Program, mint)
	if err != nil {
		return err
	}
	pool, err := pg.View(ctx, address)
	if err != nil {
		return err
	}
	if initBase == 0 {
		policy, err := cfg.Policy()
		if err != nil {
			return err
		}
		initBase = policy.InitBaseAmount(pool.ReserveBase)
	}

	markets := raydium.MarketResolverFunc(func(_ context.Context, coin, pc solana.PublicKey) (solana.PublicKey, error) {
		if marketFlag != "" {
			return solana.PublicKeyFromBase58(marketFlag)
		}
		return amm.SimulatedMarket(cfg.AMM, coin, pc)
	})
	initializer := raydium.NewInitializer(noSender{}, markets, rt.logger)

	ix, err := planMigration(ctx, initializer, signer, cfg.AMM, *pool, initBase, nonce, time.Now())
	if err != nil {
		return err
	}
	rt.logger.Info("Migration instruction built",
		zap.String("mint", mint.String()),
		zap.Uint64("init_base", initBase))
	return writeInstruction(cmd.OutOrStdout(), ix)
}

// planMigration строит initialize2 для пула, не изменяя его состояние.
func planMigration(
	ctx context.Context,
	initializer *raydium.Initializer,
	signer authority.Signer,
	ammProgram solana.PublicKey,
	pool ledger.Pool,
	initBase uint64,
	nonce uint8,
	now time.Time,
) (solana.Instruction, error) {
	if pool.IsMigrated() {
		return nil, fmt.Errorf("pool %s: %w", pool.Address, ledger.ErrAlreadyMigrated)
	}
	if initBase == 0 || initBase > pool.ReserveBase {
		return nil, fmt.Errorf("init base %d for reserve %d: %w", initBase, pool.ReserveBase, ledger.ErrInsufficientReserve)
	}
	coin, err := migration.ComputeCoinAmount(initBase, pool.ReserveToken, pool.ReserveBase)
	if err != nil {
		return nil, err
	}
	vault, err := authority.TokenVault(signer, pool.Mint)
	if err != nil {
		return nil, err
	}
	ix, _, err := initializer.BuildInstruction(ctx, amm.InitializeRequest{
		ProgramID:      ammProgram,
		CoinMint:       pool.Mint,
		PcMint:         solana.SolMint,
		Signer:         signer,
		SourceCoin:     vault,
		SourcePc:       signer.Address(),
		Nonce:          nonce,
		OpenTime:       uint64(now.Unix()),
		InitCoinAmount: coin,
		InitPcAmount:   initBase,
	})
	return ix, err
}

// noSender stands in until an RPC sender for the program authority exists;
// the command only builds instructions.
type noSender struct{}

func (noSender) Invoke(context.Context, solana.Instruction, authority.Signer) (solana.Signature, error) {
	return solana.Signature{}, errNoSender
}

func writeInstruction(out io.Writer, ix solana.Instruction) error {
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("encode instruction: %w", err)
	}
	params, err := raydium.DecodeInitialize2(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "program: %s\n", ix.ProgramID())
	for i, meta := range ix.Accounts() {
		fmt.Fprintf(out, "  %2d %s writable=%t signer=%t\n", i, meta.PublicKey, meta.IsWritable, meta.IsSigner)
	}
	fmt.Fprintf(out, "nonce: %d\nopen_time: %d\ninit_pc_amount: %d\ninit_coin_amount: %d\n",
		params.Nonce, params.OpenTime, params.InitPcAmount, params.InitCoinAmount)
	fmt.Fprintf(out, "data: %s\n", base64.StdEncoding.EncodeToString(data))
	return nil
}
