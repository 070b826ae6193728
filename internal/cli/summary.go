package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

type summaryReport struct {
	Summary domain.FinancialSummary `json:"summary"`
	Income  domain.CategoryTotals   `json:"income"`
	Expense domain.CategoryTotals   `json:"expense"`
}

func newSummaryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show income, expenses and balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r summaryReport
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() (err error) {
				r.Summary, err = a.client.FinancialSummary(ctx)
				return err
			})
			g.Go(func() (err error) {
				r.Income, err = a.client.IncomeSummary(ctx)
				return err
			})
			g.Go(func() (err error) {
				r.Expense, err = a.client.ExpenseSummary(ctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), r)
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "TYPE\tCATEGORY\tAMOUNT")
			writeTotals(tw, domain.TransactionIncome, r.Income)
			writeTotals(tw, domain.TransactionExpense, r.Expense)
			fmt.Fprintln(tw, "\t\t")
			fmt.Fprintf(tw, "TOTAL\tincome\t%s\n", r.Summary.TotalIncome.StringFixed(2))
			fmt.Fprintf(tw, "TOTAL\texpense\t%s\n", r.Summary.TotalExpense.StringFixed(2))
			fmt.Fprintf(tw, "TOTAL\tbalance\t%s\n", r.Summary.Balance.StringFixed(2))
			return tw.Flush()
		},
	}
}

func writeTotals(w io.Writer, typ domain.TransactionType, totals domain.CategoryTotals) {
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\t%s\n", typ, name, totals[name].StringFixed(2))
	}
}
