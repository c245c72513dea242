// Package arrowconv converts strata row groups to Apache Arrow records so
// tables can be handed to Arrow-based engines or written as Arrow IPC files.
package arrowconv

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/strata/pkg/column"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/rgfile"
	"github.com/ajitpratap0/strata/pkg/rowgroup"
)

// DataType returns the Arrow type a strata column type converts to.
func DataType(t column.Type) (arrow.DataType, error) {
	switch t {
	case column.Bit:
		return arrow.FixedWidthTypes.Boolean, nil
	case column.I32:
		return arrow.PrimitiveTypes.Int32, nil
	case column.I64:
		return arrow.PrimitiveTypes.Int64, nil
	case column.Flt:
		return arrow.PrimitiveTypes.Float32, nil
	case column.Dbl:
		return arrow.PrimitiveTypes.Float64, nil
	case column.Str:
		return arrow.BinaryTypes.String, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeSchema, "no arrow type for %s", t)
	}
}

// ColumnName is the field name given to column i when no names are supplied.
func ColumnName(i int) string {
	return fmt.Sprintf("c%d", i)
}

// Schema builds a nullable Arrow schema for columns of the given types.
// names may be nil; otherwise it must have one entry per column.
func Schema(types []column.Type, names []string) (*arrow.Schema, error) {
	if names != nil && len(names) != len(types) {
		return nil, errors.Newf(errors.ErrorTypeValidation, "%d names for %d columns", len(names), len(types))
	}
	fields := make([]arrow.Field, len(types))
	for i, t := range types {
		dt, err := DataType(t)
		if err != nil {
			return nil, err
		}
		name := ColumnName(i)
		if names != nil {
			name = names[i]
		}
		fields[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func rowGroupTypes(rg *rowgroup.RowGroup) []column.Type {
	types := make([]column.Type, rg.ColumnCount())
	for i := range types {
		types[i], _ = rg.ColumnType(i)
	}
	return types
}

// Record copies every row of rg into a new Arrow record. Null flags become
// Arrow validity. The caller releases the record.
func Record(mem memory.Allocator, rg *rowgroup.RowGroup, names []string) (arrow.Record, error) {
	schema, err := Schema(rowGroupTypes(rg), names)
	if err != nil {
		return nil, err
	}
	return record(mem, schema, rg)
}

func record(mem memory.Allocator, schema *arrow.Schema, rg *rowgroup.RowGroup) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	for i := range schema.Fields() {
		b.Field(i).Reserve(int(rg.RowCount()))
	}

	cur := rg.Cursor()
	valid := make([]bool, 0, 64)
	for cur.Next() {
		for i := range schema.Fields() {
			nulls, err := cur.BatchNulls(i)
			if err != nil {
				return nil, err
			}
			valid = valid[:0]
			for _, null := range nulls {
				valid = append(valid, !null)
			}
			if err := appendBatch(b.Field(i), cur, i, valid); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeInternal, "convert column").WithDetail("column", i)
			}
		}
	}
	return b.NewRecord(), nil
}

func appendBatch(fb array.Builder, cur *rowgroup.Cursor, i int, valid []bool) error {
	switch fb := fb.(type) {
	case *array.BooleanBuilder:
		vs, err := cur.BatchBit(i)
		if err != nil {
			return err
		}
		fb.AppendValues(vs, valid)
	case *array.Int32Builder:
		vs, err := cur.BatchI32(i)
		if err != nil {
			return err
		}
		fb.AppendValues(vs, valid)
	case *array.Int64Builder:
		vs, err := cur.BatchI64(i)
		if err != nil {
			return err
		}
		fb.AppendValues(vs, valid)
	case *array.Float32Builder:
		vs, err := cur.BatchFlt(i)
		if err != nil {
			return err
		}
		fb.AppendValues(vs, valid)
	case *array.Float64Builder:
		vs, err := cur.BatchDbl(i)
		if err != nil {
			return err
		}
		fb.AppendValues(vs, valid)
	case *array.StringBuilder:
		vs, err := cur.BatchStr(i)
		if err != nil {
			return err
		}
		fb.AppendValues(vs, valid)
	default:
		return fmt.Errorf("unsupported arrow builder %T", fb)
	}
	return nil
}

// WriteIPC writes every row group of file as one record batch of an Arrow
// IPC file and returns the number of rows written.
func WriteIPC(w io.Writer, file *rgfile.Reader, names []string) (int64, error) {
	descs := file.Descriptors()
	types := make([]column.Type, len(descs))
	for i, d := range descs {
		types[i] = d.Type
	}
	schema, err := Schema(types, names)
	if err != nil {
		return 0, err
	}

	mem := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to create arrow writer")
	}
	var rows int64
	for i := 0; i < file.RowGroupCount(); i++ {
		n, err := writeRowGroup(fw, mem, schema, file, i)
		if err != nil {
			fw.Close()
			return rows, err
		}
		rows += n
	}
	if err := fw.Close(); err != nil {
		return rows, errors.Wrap(err, errors.ErrorTypeFile, "failed to close arrow writer")
	}
	return rows, nil
}

func writeRowGroup(fw *ipc.FileWriter, mem memory.Allocator, schema *arrow.Schema, file *rgfile.Reader, i int) (int64, error) {
	rg, err := file.RowGroup(i)
	if err != nil {
		return 0, err
	}
	defer rg.Close()
	rec, err := record(mem, schema, rg)
	if err != nil {
		return 0, err
	}
	defer rec.Release()
	if err := fw.Write(rec); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to write record batch").WithDetail("row_group", i)
	}
	return rec.NumRows(), nil
}
