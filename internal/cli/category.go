package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

func newCategoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"categories"},
		Short:   "List and add categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := a.client.Categories(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), cats)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tTYPE")
			for _, c := range cats {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Name, c.Type)
			}
			return tw.Flush()
		},
	})

	var typ string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client.AddCategory(cmd.Context(), domain.Category{
				Name: args[0],
				Type: domain.TransactionType(strings.ToUpper(typ)),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", c.Name, c.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&typ, "type", "t", "", "INCOME or EXPENSE")
	cmd.AddCommand(add)

	return cmd
}
