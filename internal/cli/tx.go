package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/internal/statement"
	"github.com/weiawesome/fin-dashboard/pkg/storage"
)

func newTxCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transactions"},
		Short:   "List and edit transactions",
	}
	cmd.AddCommand(
		newTxListCommand(a),
		newTxAddCommand(a),
		newTxDeleteCommand(a),
		newTxImportCommand(a),
		newTxExportCommand(a),
	)
	return cmd
}

func newTxListCommand(a *app) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions (served from cache when fresh)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txs, err := a.client.Transactions(cmd.Context())
			if err != nil {
				return err
			}
			if typ != "" {
				want := domain.TransactionType(strings.ToUpper(typ))
				filtered := txs[:0:0]
				for _, tx := range txs {
					if tx.Type == want {
						filtered = append(filtered, tx)
					}
				}
				txs = filtered
			}

			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), txs)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tDESCRIPTION")
			for _, tx := range txs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Date, tx.Type, tx.Category, tx.Amount.StringFixed(2), tx.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "", "Only INCOME or EXPENSE")
	return cmd
}

func newTxAddCommand(a *app) *cobra.Command {
	var typ, category, amount, description, date string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q", amount)
			}
			if date == "" {
				date = time.Now().Format(time.DateOnly)
			}

			tx, err := a.client.AddTransaction(cmd.Context(), domain.Transaction{
				Type:        domain.TransactionType(strings.ToUpper(typ)),
				Category:    category,
				Amount:      amt,
				Description: description,
				Date:        date,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), tx)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", tx.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "EXPENSE", "INCOME or EXPENSE")
	cmd.Flags().StringVar(&category, "category", "", "Category")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD, default today)")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newTxDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := a.client.DeleteTransaction(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}

func newTxImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import transactions from CSV (date,type,category,amount,description) or an OFX/QFX statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			name := filepath.Base(args[0])
			var body io.Reader = f
			if statement.IsOFX(name) {
				txs, err := statement.ParseOFX(f)
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := statement.WriteCSV(&buf, txs); err != nil {
					return err
				}
				body = &buf
				name = strings.TrimSuffix(name, filepath.Ext(name)) + ".csv"
			}

			res, err := a.client.ImportCSV(cmd.Context(), name, body)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", res.Imported, res.Skipped)
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e)
			}
			return nil
		},
	}
}

func newTxExportCommand(a *app) *cobra.Command {
	var out string
	var toSink bool
	var expires time.Duration

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transactions as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if toSink {
				sink, err := storage.New(ctx, a.cfg.Export)
				if err != nil {
					return err
				}
				key := out
				if key == "" {
					key = fmt.Sprintf("transactions-%s.csv", time.Now().Format("20060102-150405"))
				}
				loc, err := a.client.ExportToStorage(ctx, sink, key, expires)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), loc)
				return nil
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err := a.client.ExportCSV(ctx, w)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file, or object key with --store (default stdout)")
	cmd.Flags().BoolVar(&toSink, "store", false, "Upload to the configured export storage instead")
	cmd.Flags().DurationVar(&expires, "expires", time.Hour, "Lifetime of the returned link with --store")
	return cmd
}
