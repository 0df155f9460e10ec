package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/blue-shark/internal/app/sessions"
	"github.com/PabloGalante/blue-shark/internal/domain"
)

func newSessionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(c),
		newSessionsShowCmd(c),
		newSessionsClearCmd(c),
		newSessionsImportCmd(c),
		newSessionsSlotsCmd(c),
	)
	return cmd
}

func newSessionsListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), c.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMODE\tMESSAGES\tUPDATED\tTITLE")
			for _, s := range a.svc.Sessions(cmd.Context()) {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					s.ID, s.Mode, len(s.Messages), s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Title)
			}
			return w.Flush()
		},
	}
}

func newSessionsShowCmd(c *cli) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one session's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), c.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.svc.GetSession(cmd.Context(), domain.SessionID(args[0]))
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout(), plain)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n\n", sess.Title, sess.Mode)
			for _, m := range sess.Messages {
				p.message(m)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "do not render markdown")
	return cmd
}

func newSessionsClearCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete all sessions without --yes")
			}
			a, err := buildApp(cmd.Context(), c.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.ClearHistory(cmd.Context(), true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all sessions deleted")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deleting all sessions")
	return cmd
}

func newSessionsImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import sessions from an exported blob (browser array or current format)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			incoming, err := sessions.Decode(data)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}

			a, err := buildApp(cmd.Context(), c.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			added, err := a.store.Import(cmd.Context(), incoming)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d sessions\n", added, len(incoming))
			return nil
		},
	}
}

func newSessionsSlotsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "List the persistence slots held by the storage backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), c.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			keys := []string{c.cfg.SlotKey}
			if a.slotKeys != nil {
				if keys, err = a.slotKeys(cmd.Context()); err != nil {
					return err
				}
			}
			for _, k := range keys {
				marker := " "
				if k == c.cfg.SlotKey {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, k)
			}
			return nil
		},
	}
}
