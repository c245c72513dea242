package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/metrics"
	"github.com/ajitpratap0/strata/pkg/rgfile"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

// sampleTypes is the schema of generated files.
var sampleTypes = []column.Type{column.I32, column.I64, column.Bit, column.Str, column.Flt, column.Dbl}

// sampleNames labels the generated columns.
var sampleNames = []string{"id", "amount", "flag", "label", "half", "scaled"}

const sampleNulls = 1 // the column carrying a nulls column

func (a *app) genCmd() *cobra.Command {
	var (
		rows      int
		nullEvery int
	)
	cmd := &cobra.Command{
		Use:   "gen <file>",
		Short: "Write a sample row-group file",
		Long: `Write a sample file with the columns
  id int32 = i, amount int64 = i*10, flag bit = i%3 == 0,
  label str = "cx {i}", half flt = i/2, scaled dbl = i*1.5
for i in [0, rows). Every --null-every-th amount is null.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rows < 0 || nullEvery < 0 {
				return errors.New(errors.ErrorTypeValidation, "--rows and --null-every must not be negative")
			}
			return a.generate(cmd.Context(), cmd, args[0], rows, nullEvery)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&rows, "rows", 100, "Number of rows")
	flags.IntVar(&nullEvery, "null-every", 7, "Flag every n-th amount as null (0 disables)")
	flags.String("compression", "lz4", "Column codec (none, lz4, lz4hc, zstd)")
	flags.Int("level", 0, "Codec level (0 selects the codec default)")
	flags.Int("row-group-size", 64*1024, "Rows per row group")
	flags.Bool("sync", false, "Flush the file to stable storage when done")
	_ = a.v.BindPFlag("writer.compression", flags.Lookup("compression"))
	_ = a.v.BindPFlag("writer.level", flags.Lookup("level"))
	_ = a.v.BindPFlag("writer.row_group_size", flags.Lookup("row-group-size"))
	_ = a.v.BindPFlag("writer.sync", flags.Lookup("sync"))
	return cmd
}

func (a *app) generate(ctx context.Context, cmd *cobra.Command, path string, rows, nullEvery int) (err error) {
	timer := metrics.NewTimer("gen")
	w, err := rgfile.Create(path, rgfile.WithLogger(a.logger), rgfile.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	for _, t := range sampleTypes {
		typ, enc, comp, level, err := a.cfg.Writer.Descriptor(t)
		if err != nil {
			return err
		}
		if err := w.AddColumn(typ, enc, comp, level); err != nil {
			return err
		}
	}

	size := a.cfg.Writer.RowGroupSize
	for from := 0; from < rows; from += size {
		n := min(size, rows-from)
		if err := a.writeSample(ctx, w, from, n, nullEvery); err != nil {
			return err
		}
	}
	if err := w.Finish(a.cfg.Writer.Sync); err != nil {
		return err
	}

	a.logger.Info("file written",
		zap.String("path", path),
		zap.Uint64("rows", w.RowCount()),
		zap.Int("row_groups", w.RowGroupCount()),
		zap.Duration("duration", timer.Stop()))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows in %d row groups to %s\n", w.RowCount(), w.RowGroupCount(), path)
	return nil
}

// writeSample appends rows [from, from+n) as one row group.
func (a *app) writeSample(ctx context.Context, w *rgfile.Writer, from, n, nullEvery int) error {
	cols := make([]*column.Column, len(sampleTypes))
	for i, t := range sampleTypes {
		cols[i] = column.New(t, column.Identity)
	}
	nulls := column.New(column.Bit, column.Identity)
	defer func() {
		for _, c := range cols {
			c.Close()
		}
		nulls.Close()
	}()

	for i := from; i < from+n; i++ {
		puts := []error{
			cols[0].PutI32(int32(i)),
			cols[1].PutI64(int64(i) * 10),
			cols[2].PutBit(i%3 == 0),
			cols[3].PutStr(fmt.Sprintf("cx %d", i)),
			cols[4].PutFlt(float32(i) / 2),
			cols[5].PutDbl(float64(i) * 1.5),
			nulls.PutBit(nullEvery > 0 && i%nullEvery == 0),
		}
		for _, err := range puts {
			if err != nil {
				return err
			}
		}
	}

	rg := rowgroup.New(rowgroup.WithLogger(a.logger))
	defer rg.Close()
	for i, c := range cols {
		var nc *column.Column
		if i == sampleNulls {
			nc = nulls
		}
		if err := rg.AddColumn(c, nc); err != nil {
			return err
		}
	}
	return w.AddRowGroupContext(ctx, rg)
}
