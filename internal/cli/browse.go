package cli

import (
	"github.com/spf13/cobra"

	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/effects"
)

func newTablesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables and views of a connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, conn, cleanup, err := sessionConnection(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tables, err := s.Orch.ListTables(cmd.Context(), conn.ID)
			if err != nil {
				return err
			}
			if tables == nil {
				tables = []database.TableInfo{}
			}
			return printJSON(cmd, tables)
		},
	}
	addConnFlag(cmd)
	return cmd
}

func newColumnsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns <table>",
		Short: "Show the columns of a table",
		Long: `Show the columns of a table. The table is "name" or "schema.name".

Loading columns also refreshes the table's cached first page.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, conn, cleanup, err := sessionConnection(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			table, err := s.Orch.ResolveTable(cmd.Context(), conn.ID, args[0])
			if err != nil {
				return err
			}
			entry, err := s.Orch.OpenTable(cmd.Context(), conn.ID, table)
			if err != nil {
				return err
			}
			return printJSON(cmd, entry.Columns)
		},
	}
	addConnFlag(cmd)
	return cmd
}

// rowsOutput is one page as shown to the user, after filter and sort.
type rowsOutput struct {
	Table   database.TableInfo `json:"table"`
	Rows    []database.DataRow `json:"rows"`
	Offset  int                `json:"offset"`
	HasMore bool               `json:"hasMore"`
	Total   *int               `json:"total,omitempty"`
}

func newRowsCommand() *cobra.Command {
	var (
		offset              int
		filter, sort, order string
	)

	cmd := &cobra.Command{
		Use:   "rows <table>",
		Short: "Print one page of rows",
		Example: `  # First page of users
  dbbrowse rows users -c shop

  # Second page, only rows mentioning "berlin", newest first
  dbbrowse rows users -c shop --offset 100 --filter berlin --sort created_at --dir desc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, conn, cleanup, err := sessionConnection(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			table, err := s.Orch.ResolveTable(cmd.Context(), conn.ID, args[0])
			if err != nil {
				return err
			}
			entry, err := s.Orch.FetchPage(cmd.Context(), conn.ID, table, offset)
			if err != nil {
				return err
			}

			view := effects.NewViewState(filter, sort, order)
			return printJSON(cmd, rowsOutput{
				Table:   table,
				Rows:    nonNilRows(s.Orch.View(entry.Rows, view)),
				Offset:  entry.Offset,
				HasMore: entry.HasMore,
			})
		},
	}

	addConnFlag(cmd)
	cmd.Flags().IntVar(&offset, "offset", 0, "row offset of the page")
	cmd.Flags().StringVar(&filter, "filter", "", "keep rows containing this text")
	cmd.Flags().StringVar(&sort, "sort", "", "column to sort the page by")
	cmd.Flags().StringVar(&order, "dir", "asc", "sort direction (asc|desc)")
	return cmd
}

func newSearchCommand() *cobra.Command {
	var offset int

	cmd := &cobra.Command{
		Use:   "search <table> <term>",
		Short: "Search every column of a table in the database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, conn, cleanup, err := sessionConnection(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			table, err := s.Orch.ResolveTable(cmd.Context(), conn.ID, args[0])
			if err != nil {
				return err
			}
			res, err := s.Orch.Search(cmd.Context(), conn.ID, table, args[1], offset)
			if err != nil {
				return err
			}
			return printJSON(cmd, rowsOutput{
				Table:   table,
				Rows:    nonNilRows(res.Rows),
				Offset:  res.Offset,
				HasMore: res.HasMore,
				Total:   &res.Total,
			})
		},
	}

	addConnFlag(cmd)
	cmd.Flags().IntVar(&offset, "offset", 0, "row offset of the page")
	return cmd
}

func nonNilRows(r []database.DataRow) []database.DataRow {
	if r == nil {
		return []database.DataRow{}
	}
	return r
}
