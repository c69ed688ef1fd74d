package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rancher/vmstatus/api/v1alpha1"
	"github.com/rancher/vmstatus/internal/notify"
)

// NewRootCommand returns the vmstatus command, writing results to out and logs to logOut.
func NewRootCommand(ctx context.Context, out, logOut io.Writer) *cobra.Command {
	o := NewOptions()

	cmd := &cobra.Command{
		Use:           "vmstatus",
		Short:         "Read and write the voicemail status table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetContext(ctx)
	cmd.SetOut(out)
	o.AddFlags(cmd.PersistentFlags())

	run := func(f func(cmd *cobra.Command, a *App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := o.Complete()
			if err != nil {
				return err
			}
			logger, err := o.Logger(cfg, logOut)
			if err != nil {
				return err
			}

			a, err := New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("Failed to close", "error", err)
				}
			}()

			return f(cmd, a, args)
		}
	}

	cmd.AddCommand(
		newMigrateCommand(run),
		newInsertCommand(run),
		newQueryCommand(run),
		newUpdateCommand(run),
		newDeleteCommand(run),
		newTypeCommand(run),
		newWatchCommand(run),
	)

	return cmd
}

var errInsertDeclined = errors.New("insert declined")

type runner func(f func(cmd *cobra.Command, a *App, args []string) error) func(*cobra.Command, []string) error

func uriArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return v1alpha1.StatusContentURI
}

func newMigrateCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the status table",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, a *App, _ []string) error {
			if err := a.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.Logger.InfoContext(cmd.Context(), "Database migrated", "driver", a.Config.Database.Driver)

			return nil
		}),
	}
}

func newInsertCommand(run runner) *cobra.Command {
	var assignments []string

	cmd := &cobra.Command{
		Use:   "insert [uri]",
		Short: "Insert a status row and print its URI",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, a *App, args []string) error {
			values, err := ParseAssignments(assignments)
			if err != nil {
				return err
			}

			uri, err := a.Provider.Insert(a.CallerContext(cmd.Context()), uriArg(args), values)
			if err != nil {
				return err
			}
			if uri == nil {
				return errInsertDeclined
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), uri.String())
			return err
		}),
	}
	cmd.Flags().StringArrayVar(&assignments, "set", nil, "Column assignment, column=value")

	return cmd
}

func newQueryCommand(run runner) *cobra.Command {
	var (
		projection []string
		selection  string
		args       []string
		sortOrder  string
	)

	cmd := &cobra.Command{
		Use:   "query [uri]",
		Short: "Print the matching status rows as JSON, one per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, a *App, uriArgs []string) error {
			cursor, err := a.Provider.Query(a.CallerContext(cmd.Context()), uriArg(uriArgs),
				projection, selection, parseArgs(args), sortOrder)
			if err != nil {
				return err
			}

			rows, err := cursor.ReadAll()
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			for _, row := range rows {
				if err := encoder.Encode(row); err != nil {
					return err
				}
			}

			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&projection, "projection", nil, "Columns to return, all columns when empty")
	cmd.Flags().StringVar(&selection, "where", "", "Selection clause, ? placeholders bind --arg values")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "Selection argument")
	cmd.Flags().StringVar(&sortOrder, "sort", "", "Sort order")

	return cmd
}

func newUpdateCommand(run runner) *cobra.Command {
	var (
		assignments []string
		selection   string
		args        []string
	)

	cmd := &cobra.Command{
		Use:   "update [uri]",
		Short: "Update the matching status rows and print their count",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, a *App, uriArgs []string) error {
			values, err := ParseAssignments(assignments)
			if err != nil {
				return err
			}

			count, err := a.Provider.Update(a.CallerContext(cmd.Context()), uriArg(uriArgs), values, selection, parseArgs(args))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), count)
			return err
		}),
	}
	cmd.Flags().StringArrayVar(&assignments, "set", nil, "Column assignment, column=value")
	cmd.Flags().StringVar(&selection, "where", "", "Selection clause, ? placeholders bind --arg values")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "Selection argument")

	return cmd
}

func newDeleteCommand(run runner) *cobra.Command {
	var (
		selection string
		args      []string
	)

	cmd := &cobra.Command{
		Use:   "delete [uri]",
		Short: "Delete the matching status rows and print their count",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, a *App, uriArgs []string) error {
			count, err := a.Provider.Delete(a.CallerContext(cmd.Context()), uriArg(uriArgs), selection, parseArgs(args))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), count)
			return err
		}),
	}
	cmd.Flags().StringVar(&selection, "where", "", "Selection clause, ? placeholders bind --arg values")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "Selection argument")

	return cmd
}

func newTypeCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "type <uri>",
		Short: "Print the MIME type of a URI",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, a *App, args []string) error {
			mimeType, err := a.Provider.GetType(args[0])
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), mimeType)
			return err
		}),
	}
}

func newWatchCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [uri]",
		Short: "Print the changes published under a URI until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, a *App, args []string) error {
			ctx := cmd.Context()

			w, err := a.WatchChanges(ctx, uriArg(args))
			if err != nil {
				return err
			}
			defer w.Stop()

			encoder := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-w.ResultChan():
					if !ok {
						return nil
					}
					change, ok := event.Object.(*notify.ChangeEvent)
					if !ok {
						continue
					}
					if err := encoder.Encode(change); err != nil {
						return err
					}
				}
			}
		}),
	}
}
