package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/strata/pkg/json"
	"github.com/ajitpratap0/strata/pkg/predicate"
	"github.com/ajitpratap0/strata/pkg/rgfile"
	"github.com/ajitpratap0/strata/pkg/rowcursor"
)

type fileInfo struct {
	Path      string         `json:"path"`
	Size      int            `json:"size"`
	Rows      uint64         `json:"rows"`
	Columns   []columnInfo   `json:"columns"`
	RowGroups []rowGroupInfo `json:"row_groups"`
}

type columnInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Encoding    string `json:"encoding"`
	Compression string `json:"compression"`
	Level       int32  `json:"level"`
}

type rowGroupInfo struct {
	Offset uint64      `json:"offset"`
	Size   uint64      `json:"size"`
	Rows   uint64      `json:"rows"`
	Chunks []chunkInfo `json:"chunks"`
}

type chunkInfo struct {
	Column           string      `json:"column"`
	Part             string      `json:"part"`
	Offset           uint64      `json:"offset"`
	Size             uint64      `json:"size"`
	DecompressedSize uint64      `json:"decompressed_size"`
	Count            uint64      `json:"count"`
	Min              interface{} `json:"min"`
	Max              interface{} `json:"max"`
}

// describe collects the metadata of every row group without touching any
// payload.
func describe(file *rgfile.Reader, names []string) (*fileInfo, error) {
	info := &fileInfo{
		Path: file.Path(),
		Size: file.Size(),
		Rows: file.RowCount(),
	}
	for i, d := range file.Descriptors() {
		info.Columns = append(info.Columns, columnInfo{
			Name:        names[i],
			Type:        d.Type.String(),
			Encoding:    d.Encoding.String(),
			Compression: d.Compression.String(),
			Level:       d.Level,
		})
	}
	for i := 0; i < file.RowGroupCount(); i++ {
		g, err := file.RowGroupHeader(i)
		if err != nil {
			return nil, err
		}
		headers, err := file.ColumnHeaders(i)
		if err != nil {
			return nil, err
		}
		rg := rowGroupInfo{Offset: g.Offset, Size: g.Size}
		for k, h := range headers {
			part := "values"
			if k%2 == 1 {
				part = "nulls"
			}
			rg.Chunks = append(rg.Chunks, chunkInfo{
				Column:           names[k/2],
				Part:             part,
				Offset:           h.Offset,
				Size:             h.Size,
				DecompressedSize: h.DecompressedSize,
				Count:            h.Index.Count,
				Min:              h.Index.Min.Interface(),
				Max:              h.Index.Max.Interface(),
			})
		}
		if len(headers) > 0 {
			rg.Rows = headers[0].Index.Count
		}
		info.RowGroups = append(info.RowGroups, rg)
	}
	return info, nil
}

func (a *app) dumpCmd() *cobra.Command {
	var names []string
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Print file metadata and zone maps as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := a.openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			cols, err := columnNames(file, names)
			if err != nil {
				return err
			}
			info, err := describe(file, cols)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().StringSliceVar(&names, "names", nil, "Column names, one per column (default c0, c1, ...)")
	return cmd
}

type groupAnalysis struct {
	Index            int    `json:"index"`
	Rows             uint64 `json:"rows"`
	Verdict          string `json:"verdict"`
	Matched          uint64 `json:"matched"`
	Size             uint64 `json:"size"`
	DecompressedSize uint64 `json:"decompressed_size"`
}

type analysis struct {
	Filter           string          `json:"filter"`
	Rows             uint64          `json:"rows"`
	Matched          uint64          `json:"matched"`
	Pruned           int             `json:"pruned"`
	Size             uint64          `json:"size"`
	DecompressedSize uint64          `json:"decompressed_size"`
	Groups           []groupAnalysis `json:"row_groups"`
}

// analyze evaluates the filter against every row group, reporting the zone
// map verdict next to the number of rows that actually match.
func (a *app) analyze(cmd *cobra.Command, file *rgfile.Reader, o *scanOptions, names []string) (*analysis, error) {
	pred, err := a.parseFilter(cmd, file, o, names)
	if err != nil {
		return nil, err
	}
	out := &analysis{Filter: pred.String(), Rows: file.RowCount()}
	for i := 0; i < file.RowGroupCount(); i++ {
		headers, err := file.ColumnHeaders(i)
		if err != nil {
			return nil, err
		}
		ga := groupAnalysis{Index: i}
		for _, h := range headers {
			ga.Size += h.Size
			ga.DecompressedSize += h.DecompressedSize
		}
		if err := countGroup(cmd, file, i, pred, &ga); err != nil {
			return nil, err
		}
		if ga.Verdict == predicate.NoRows.String() {
			out.Pruned++
			a.metrics.RowGroupPruned()
		} else {
			a.metrics.RowGroupScanned()
		}
		a.metrics.RowsMatched(ga.Matched)
		out.Matched += ga.Matched
		out.Size += ga.Size
		out.DecompressedSize += ga.DecompressedSize
		out.Groups = append(out.Groups, ga)
	}
	return out, nil
}

// countGroup fills ga's row count, verdict and matched rows for row group i.
func countGroup(cmd *cobra.Command, file *rgfile.Reader, i int, pred *predicate.Predicate, ga *groupAnalysis) error {
	rg, err := file.RowGroupContext(cmd.Context(), i)
	if err != nil {
		return err
	}
	defer rg.Close()
	cur, err := rowcursor.New(rg, pred)
	if err != nil {
		return err
	}
	ga.Rows = rg.RowCount()
	ga.Verdict = cur.Verdict().String()
	ga.Matched, err = cur.Count()
	return err
}

func (a *app) analyzeCmd() *cobra.Command {
	var o scanOptions
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Show how a filter prunes each row group",
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
			res, err := a.analyze(cmd, file, &o, names)
			if err != nil {
				return err
			}
			if o.format == "json" {
				data, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return printAnalysis(cmd.OutOrStdout(), res)
		},
	}
	o.register(cmd, false)
	cmd.Flags().StringVarP(&o.format, "output", "o", "text", "Report format (text, json)")
	return cmd
}

func printAnalysis(w io.Writer, res *analysis) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "filter: %s\n", res.Filter)
	fmt.Fprintln(tw, "GROUP\tROWS\tVERDICT\tMATCHED\tSIZE\tDECOMPRESSED")
	for _, g := range res.Groups {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%d\n", g.Index, g.Rows, g.Verdict, g.Matched, g.Size, g.DecompressedSize)
	}
	fmt.Fprintf(tw, "total\t%d\t%d pruned\t%d\t%d\t%d\n", res.Rows, res.Pruned, res.Matched, res.Size, res.DecompressedSize)
	return tw.Flush()
}
