package cli

import (
	"github.com/spf13/cobra"

	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/errs"
)

func newConnectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "List and manage saved connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, cleanup, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return printJSON(cmd, s.Orch.Connections())
		},
	}

	cmd.AddCommand(newConnectionsAddCommand())
	cmd.AddCommand(newConnectionsRenameCommand())
	cmd.AddCommand(newConnectionsDeleteCommand())
	return cmd
}

func newConnectionsAddCommand() *cobra.Command {
	var dialect, dsn string

	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Test a connection and save it",
		Example: `  # Save a local SQLite file
  dbbrowse connections add shop --dialect sqlite --dsn ./shop.db

  # Save a Postgres database, naming it after the database
  dbbrowse connections add --dialect postgres --dsn postgres://app@localhost/app`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := database.ParseDialect(dialect)
			if err != nil {
				return errs.Wrap(errs.ErrKindInvalidInput, "invalid --dialect", err)
			}
			var name string
			if len(args) == 1 {
				name = args[0]
			}

			s, cleanup, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			info, tables, err := s.Orch.Connect(cmd.Context(), name, database.ConnectionConfig{
				Dialect:          d,
				ConnectionString: dsn,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"connection": info, "tables": tables})
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "", "postgres, mysql or sqlite")
	cmd.Flags().StringVar(&dsn, "dsn", "", "connection string or SQLite file path")
	_ = cmd.MarkFlagRequired("dialect")
	_ = cmd.MarkFlagRequired("dsn")
	return cmd
}

func newConnectionsRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <connection> <new-name>",
		Short: "Rename a saved connection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			conn, err := resolveConnection(s.Orch, args[0])
			if err != nil {
				return err
			}
			info, err := s.Orch.RenameConnection(conn.ID, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
}

func newConnectionsDeleteCommand() *cobra.Command {
	var active string

	cmd := &cobra.Command{
		Use:   "delete <connection>",
		Short: "Delete a saved connection and its cached tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			conn, err := resolveConnection(s.Orch, args[0])
			if err != nil {
				return err
			}
			return s.Orch.DeleteConnection(conn.ID, active)
		},
	}

	cmd.Flags().StringVar(&active, "active", "", "ID of the connection in use, which may not be deleted")
	return cmd
}
