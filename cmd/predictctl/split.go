package main

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/imperfectform/predictbot/internal/fees"
)

type splitArguments struct {
	Total        string
	Charity      uint64
	Maintenance  uint64
	Stake        string
	WinningTotal string
}

var splitArgs splitArguments

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "preview the fee split of a resolved pool",
	Long: `Amounts are integers in the chain's smallest unit. With --stake and
--winning-total the command also prints that winner's payout.`,
	RunE: splitRun,
}

func init() {
	splitCmd.Flags().StringVarP(&splitArgs.Total, "total", "t", "", "total staked on the prediction")
	splitCmd.Flags().Uint64Var(&splitArgs.Charity, "charity", 15, "charity fee percentage")
	splitCmd.Flags().Uint64Var(&splitArgs.Maintenance, "maintenance", 5, "maintenance fee percentage")
	splitCmd.Flags().StringVarP(&splitArgs.Stake, "stake", "s", "", "one winner's stake")
	splitCmd.Flags().StringVarP(&splitArgs.WinningTotal, "winning-total", "w", "", "total staked on the winning side")
}

type splitOutput struct {
	TotalStaked       string `json:"totalStaked"`
	CharityAmount     string `json:"charityAmount"`
	MaintenanceAmount string `json:"maintenanceAmount"`
	Distributable     string `json:"distributable"`
	Payout            string `json:"payout,omitempty"`
}

func parseInt(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("--%s: %q is not a non-negative integer", name, s)
	}
	return v, nil
}

func splitRun(cmd *cobra.Command, args []string) error {
	total, err := parseInt("total", splitArgs.Total)
	if err != nil {
		return err
	}
	s, err := fees.SplitPool(total, splitArgs.Charity, splitArgs.Maintenance)
	if err != nil {
		return err
	}
	out := splitOutput{
		TotalStaked:       total.String(),
		CharityAmount:     s.CharityAmount.String(),
		MaintenanceAmount: s.MaintenanceAmount.String(),
		Distributable:     s.Distributable.String(),
	}

	if splitArgs.Stake != "" || splitArgs.WinningTotal != "" {
		stake, err := parseInt("stake", splitArgs.Stake)
		if err != nil {
			return err
		}
		winning, err := parseInt("winning-total", splitArgs.WinningTotal)
		if err != nil {
			return err
		}
		if stake.Cmp(winning) > 0 || winning.Cmp(total) > 0 {
			return fmt.Errorf("need stake <= winning total <= total, got %s, %s, %s", stake, winning, total)
		}
		out.Payout = fees.Payout(stake, s.Distributable, winning).String()
	}
	return printJSON(cmd.OutOrStdout(), out)
}
