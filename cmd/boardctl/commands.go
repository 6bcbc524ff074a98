package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/inamate/whiteboard/internal/auth"
	"github.com/inamate/whiteboard/internal/board"
	"github.com/inamate/whiteboard/internal/geom"
	"github.com/inamate/whiteboard/internal/history"
	"github.com/inamate/whiteboard/internal/spatial"
	"github.com/inamate/whiteboard/internal/store"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "Inspect and convert whiteboard board records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newInspectCmd(),
		newValidateCmd(),
		newConvertCmd("upgrade", "Rewrite a record in the current patch encoding", store.Record.Upgrade),
		newConvertCmd("downgrade", "Rewrite a record in the legacy snapshot-only encoding", store.Record.Downgrade),
		newMaterializeCmd(),
		newQueryCmd(),
		newListCmd(),
		newExportCmd(),
		newTokenCmd(),
	)
	return root
}

func readRecord(path string) (store.Record, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("read %s: %w", path, err)
	}
	rec, err := store.Decode(data)
	if err != nil {
		return store.Record{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <record.json>",
		Short: "Summarize a record's history log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(args[0])
			if err != nil {
				return err
			}
			version := rec.Version
			v2, err := rec.Upgrade()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "board:    %s\n", v2.ID)
			fmt.Fprintf(out, "version:  %d\n", version)
			fmt.Fprintf(out, "elements: %d\n", len(v2.Elements))
			fmt.Fprintf(out, "cursor:   %d of %d\n", v2.HistoryIndex, len(v2.History))
			if v2.MaxHistory > 0 {
				fmt.Fprintf(out, "max:      %d\n", v2.MaxHistory)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\nINDEX\tKIND\tCHANGES\t")
			for i, e := range v2.History {
				marker := ""
				if i == v2.HistoryIndex {
					marker = "<"
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i, e.Kind, e.Changes(), marker)
			}
			return tw.Flush()
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <record.json>",
		Short: "Check that every history entry can be materialized",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(args[0])
			if err != nil {
				return err
			}
			v2, err := rec.Upgrade()
			if err != nil {
				return err
			}
			if err := history.Validate(v2.History, v2.HistoryIndex); err != nil {
				return fmt.Errorf("invalid history: %w", err)
			}
			for i := range v2.History {
				if _, err := history.Materialize(v2.History, i, nil); err != nil {
					return fmt.Errorf("entry %d: %w", i, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d entries\n", len(v2.History))
			return nil
		},
	}
}

func newConvertCmd(use, short string, convert func(store.Record) (store.Record, error)) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   use + " <in.json> [out.json]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				output = args[1]
			}
			rec, err := readRecord(args[0])
			if err != nil {
				return err
			}
			converted, err := convert(rec)
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			if output == "" {
				return writeJSON(cmd.OutOrStdout(), converted)
			}
			data, err := store.Encode(converted)
			if err != nil {
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newMaterializeCmd() *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "materialize <record.json>",
		Short: "Print the elements at a history index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(args[0])
			if err != nil {
				return err
			}
			v2, err := rec.Upgrade()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("index") {
				index = v2.HistoryIndex
			}
			col, err := history.Materialize(v2.History, index, nil)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), col)
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "history index (default: the record's cursor)")
	return cmd
}

func newQueryCmd() *cobra.Command {
	var rect string
	var cellSize float64
	cmd := &cobra.Command{
		Use:   "query <record.json>",
		Short: "List the current elements intersecting a rectangle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRect(rect)
			if err != nil {
				return err
			}
			rec, err := readRecord(args[0])
			if err != nil {
				return err
			}
			b, err := board.FromRecord(rec)
			if err != nil {
				return err
			}
			ix := spatial.Build(b.Committed(), cellSize, nil)
			for _, el := range ix.QueryRect(r) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", el.ID, el.Type)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rect, "rect", "", "x,y,width,height")
	cmd.Flags().Float64Var(&cellSize, "cell-size", spatial.DefaultCellSize, "grid cell size")
	cmd.MarkFlagRequired("rect")
	return cmd
}

func parseRect(s string) (geom.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geom.Rect{}, fmt.Errorf("rect %q: want x,y,width,height", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.Rect{}, fmt.Errorf("rect %q: %w", s, err)
		}
		v[i] = f
	}
	return geom.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

func addSQLiteFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVar(path, "sqlite", "./data/boards.db", "SQLite database written by the server")
}

func newListCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the boards in a SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := store.OpenSQLite(ctx, path)
			if err != nil {
				return err
			}
			defer st.Close()

			ids, err := st.List(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	addSQLiteFlag(cmd, &path)
	return cmd
}

func newExportCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "export <board-id>",
		Short: "Print a board's record from a SQLite store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := store.OpenSQLite(ctx, path)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.Load(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	addSQLiteFlag(cmd, &path)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := auth.NewService(os.Getenv("JWT_SECRET"))
			res, err := svc.IssueToken(auth.User{ID: args[0], DisplayName: name})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	return cmd
}
