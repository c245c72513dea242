package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/pkg/arrowconv"
	"github.com/ajitpratap0/strata/pkg/errors"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		names  []string
		format string
	)
	cmd := &cobra.Command{
		Use:   "export <file> <out>",
		Short: "Convert a row-group file to another format",
		Long: `Convert a row-group file. The arrow format writes an Arrow IPC file
with one record batch per row group; nulls become Arrow validity.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if format != "arrow" {
				return errors.Newf(errors.ErrorTypeValidation, "unsupported export format %q", format)
			}
			file, err := a.openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			if len(names) == 0 {
				names = nil
			}

			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[1], err)
			}
			defer func() {
				if cerr := out.Close(); err == nil {
					err = cerr
				}
			}()
			rows, err := arrowconv.WriteIPC(out, file, names)
			if err != nil {
				return err
			}
			a.logger.Info("file exported",
				zap.String("format", format),
				zap.String("path", args[1]),
				zap.Int64("rows", rows))
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", rows, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "arrow", "Output format (arrow)")
	cmd.Flags().StringSliceVar(&names, "names", nil, "Field names, one per column (default c0, c1, ...)")
	return cmd
}
