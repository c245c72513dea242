package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/strata/internal/filter"
	"github.com/ajitpratap0/strata/pkg/arrowconv"
	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/json"
	"github.com/ajitpratap0/strata/pkg/metrics"
	"github.com/ajitpratap0/strata/pkg/predicate"
	"github.com/ajitpratap0/strata/pkg/reader"
	"github.com/ajitpratap0/strata/pkg/rgfile"
)

// scanOptions are the flags shared by the commands that evaluate a filter.
type scanOptions struct {
	filter  string
	names   []string
	format  string
	explain bool
}

func (o *scanOptions) register(cmd *cobra.Command, withFormat bool) {
	flags := cmd.Flags()
	flags.StringVarP(&o.filter, "filter", "f", "", `Filter expression, e.g. "id > 20 and label endswith '0'"`)
	flags.StringSliceVar(&o.names, "names", nil, "Column names, one per column (default c0, c1, ...)")
	flags.BoolVar(&o.explain, "explain", false, "Print the parsed filter to stderr")
	if withFormat {
		flags.StringVarP(&o.format, "output", "o", "jsonl", "Row format (jsonl, json, text)")
	}
}

// columnNames returns the display names for file's columns.
func columnNames(file *rgfile.Reader, names []string) ([]string, error) {
	n := file.ColumnCount()
	if len(names) == 0 {
		out := make([]string, n)
		for i := range out {
			out[i] = arrowconv.ColumnName(i)
		}
		return out, nil
	}
	if len(names) != n {
		return nil, errors.Newf(errors.ErrorTypeValidation, "--names has %d entries, file has %d columns", len(names), n)
	}
	return names, nil
}

func fileTypes(file *rgfile.Reader) []column.Type {
	descs := file.Descriptors()
	types := make([]column.Type, len(descs))
	for i, d := range descs {
		types[i] = d.Type
	}
	return types
}

// predicate parses the filter against file's schema.
func (a *app) parseFilter(cmd *cobra.Command, file *rgfile.Reader, o *scanOptions, names []string) (*predicate.Predicate, error) {
	pred, err := filter.Parse(o.filter, filter.Schema{
		Types:         fileTypes(file),
		Names:         names,
		CaseSensitive: a.cfg.Reader.CaseSensitive,
	})
	if err != nil {
		return nil, err
	}
	if o.explain {
		fmt.Fprintf(cmd.ErrOrStderr(), "filter: %s\n", pred)
	}
	a.logger.Debug("filter parsed", zap.Stringer("predicate", pred))
	return pred, nil
}

// scan writes up to limit matching rows of path; limit <= 0 writes all.
func (a *app) scan(cmd *cobra.Command, path string, o *scanOptions, limit int) error {
	file, err := a.openFile(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer file.Close()

	names, err := columnNames(file, o.names)
	if err != nil {
		return err
	}
	pred, err := a.parseFilter(cmd, file, o, names)
	if err != nil {
		return err
	}
	out, err := newRowWriter(cmd.OutOrStdout(), o.format, names)
	if err != nil {
		return err
	}

	r := reader.New(file, pred,
		reader.WithLogger(a.logger),
		reader.WithMetrics(a.metrics),
		reader.WithContext(cmd.Context()))
	defer r.Close()

	timer := metrics.NewTimer("scan")
	throughput := metrics.NewThroughputTracker(a.cfg.Metrics.Component)
	n := 0
	for (limit <= 0 || n < limit) && r.Next() {
		if err := out.write(r); err != nil {
			return err
		}
		n++
	}
	if err := r.Err(); err != nil {
		return err
	}
	throughput.Increment(int64(n))
	a.logger.Info("scan finished",
		zap.String("path", path),
		zap.Int("rows", n),
		zap.Duration("duration", timer.Stop()),
		zap.Float64("rows_per_second", throughput.GetAndReset()))
	return out.close()
}

func (a *app) catCmd() *cobra.Command {
	var o scanOptions
	cmd := &cobra.Command{
		Use:   "cat <file>",
		Short: "Print the rows that match a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.scan(cmd, args[0], &o, 0)
		},
	}
	o.register(cmd, true)
	return cmd
}

func (a *app) headCmd() *cobra.Command {
	var (
		o     scanOptions
		limit int
	)
	cmd := &cobra.Command{
		Use:   "head <file>",
		Short: "Print the first rows that match a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New(errors.ErrorTypeValidation, "-n must be positive")
			}
			return a.scan(cmd, args[0], &o, limit)
		},
	}
	o.register(cmd, true)
	cmd.Flags().IntVarP(&limit, "lines", "n", 10, "Number of rows")
	return cmd
}

func (a *app) countCmd() *cobra.Command {
	var o scanOptions
	cmd := &cobra.Command{
		Use:   "count <file>",
		Short: "Count the rows that match a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := a.openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			names, err := columnNames(file, o.names)
			if err != nil {
				return err
			}
			pred, err := a.parseFilter(cmd, file, &o, names)
			if err != nil {
				return err
			}
			r := reader.New(file, pred,
				reader.WithLogger(a.logger),
				reader.WithMetrics(a.metrics),
				reader.WithContext(cmd.Context()))
			defer r.Close()
			n, err := r.Count()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	o.register(cmd, false)
	return cmd
}

// rowWriter renders reader rows in one of the output formats.
type rowWriter struct {
	w     io.Writer
	names []string
	enc   *json.StreamingEncoder
	obj   json.Object
	text  []string
}

func newRowWriter(w io.Writer, format string, names []string) (*rowWriter, error) {
	rw := &rowWriter{w: w, names: names}
	switch format {
	case "", "jsonl":
		rw.enc = json.NewStreamingEncoder(w, false)
	case "json":
		rw.enc = json.NewStreamingEncoder(w, true)
	case "text":
		rw.text = make([]string, len(names))
		if _, err := fmt.Fprintln(w, strings.Join(names, "\t")); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "unknown output format %q", format)
	}
	return rw, nil
}

func (rw *rowWriter) write(r *reader.Reader) error {
	if rw.enc != nil {
		rw.obj.Reset()
	}
	for i, name := range rw.names {
		v, err := rowValue(r, i)
		if err != nil {
			return err
		}
		if rw.enc != nil {
			rw.obj.Set(name, v)
			continue
		}
		if v == nil {
			rw.text[i] = "NULL"
		} else {
			rw.text[i] = fmt.Sprint(v)
		}
	}
	if rw.enc != nil {
		return rw.enc.Encode(&rw.obj)
	}
	_, err := fmt.Fprintln(rw.w, strings.Join(rw.text, "\t"))
	return err
}

func (rw *rowWriter) close() error {
	if rw.enc != nil {
		return rw.enc.Close()
	}
	return nil
}

// rowValue returns the value of column i of the current row, or nil when the
// value is null.
func rowValue(r *reader.Reader, i int) (interface{}, error) {
	null, err := r.IsNull(i)
	if err != nil || null {
		return nil, err
	}
	v, err := r.Value(i)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}
