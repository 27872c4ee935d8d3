package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/fairlaunch/internal/authority"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/pricing"
)

func newPoolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pool [mint]",
		Short: "Show one pool or list all pools stored in Postgres",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			pg, err := rt.postgres(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				pools, err := pg.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "POOL\tMINT\tPHASE\tRESERVE_TOKEN\tRESERVE_BASE\tLP_SUPPLY")
				for _, p := range pools {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
						p.Address, p.Mint, p.Phase, p.ReserveToken, p.ReserveBase, p.LPSupply)
				}
				return w.Flush()
			}

			mint, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid mint: %w", err)
			}
			address, _, err := authority.DerivePool(rt.cfg.Program, mint)
			if err != nil {
				return err
			}
			pool, err := pg.View(cmd.Context(), address)
			if err != nil {
				return err
			}
			return printPool(out, rt.cfg.Program, *pool)
		},
	}
}

func printPool(out io.Writer, program solana.PublicKey, p ledger.Pool) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "pool:\t%s\n", p.Address)
	fmt.Fprintf(w, "mint:\t%s\n", p.Mint)
	fmt.Fprintf(w, "phase:\t%s\n", p.Phase)
	fmt.Fprintf(w, "reserve_token:\t%d\n", p.ReserveToken)
	fmt.Fprintf(w, "reserve_base:\t%d\n", p.ReserveBase)
	fmt.Fprintf(w, "spot_price:\t%s\n", pricing.SpotPrice(p.ReserveToken, p.ReserveBase).String())
	fmt.Fprintf(w, "lp_supply:\t%d\n", p.LPSupply)
	fmt.Fprintf(w, "providers:\t%d\n", len(p.Positions))
	fmt.Fprintf(w, "updated_at:\t%s\n", p.UpdatedAt.Format("2006-01-02 15:04:05"))
	if err := w.Flush(); err != nil {
		return err
	}
	if len(p.Positions) == 0 {
		return nil
	}

	owners := make([]solana.PublicKey, 0, len(p.Positions))
	for owner := range p.Positions {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })

	fmt.Fprintln(w, "\nPROVIDER\tPOSITION\tSHARES")
	for _, owner := range owners {
		position, _, err := authority.DeriveLiquidityProvider(program, p.Address, owner)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", owner, position, p.Positions[owner])
	}
	return w.Flush()
}
