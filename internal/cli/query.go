package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/persist"
)

func newQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql|->",
		Short: "Run a SQL statement and record it in the history",
		Example: `  dbbrowse query -c shop "SELECT count(*) FROM orders"

  # Read the statement from stdin
  cat report.sql | dbbrowse query -c shop -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := args[0]
			if sql == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errs.Wrap(errs.ErrKindInvalidInput, "failed to read statement from stdin", err)
				}
				sql = string(data)
			}
			if strings.TrimSpace(sql) == "" {
				return errs.New(errs.ErrKindInvalidInput, "empty statement")
			}

			s, conn, cleanup, err := sessionConnection(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := s.Orch.ExecuteQuery(cmd.Context(), conn.ID, sql)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	addConnFlag(cmd)
	return cmd
}

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent statements, newest first",
		Long: `Show recent statements, newest first. Without --conn the history of
every connection is shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, cleanup, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var connID string
			if ref, _ := cmd.Flags().GetString("conn"); ref != "" {
				conn, err := resolveConnection(s.Orch, ref)
				if err != nil {
					return err
				}
				connID = conn.ID
			}
			items := s.Orch.History(connID, limit)
			if items == nil {
				items = []persist.QueryHistoryItem{}
			}
			return printJSON(cmd, items)
		},
	}
	addConnFlag(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries (0 for all)")
	return cmd
}
