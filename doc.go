// Package strata is a columnar storage engine for typed tables stored as
// row groups in a single memory-mapped file.
//
// Each row group holds one values payload and one nulls payload per column.
// Every payload carries a zone map (count, min, max) so scans can decide
// whether a row group can match a predicate before touching its data. Payloads
// are compressed with LZ4, LZ4HC or ZSTD and decompressed only when a column
// is first read.
//
// # Packages
//
//   - pkg/column: typed columns, zone maps and 64-row batch cursors
//   - pkg/match: per-batch comparison kernels producing bit masks
//   - pkg/compression: the block codecs
//   - pkg/mmap: reference-counted read-only file mappings
//   - pkg/rowgroup: eager and lazily materialized row groups
//   - pkg/predicate: predicate trees evaluated against zone maps and rows
//   - pkg/rowcursor: row-at-a-time iteration over matching rows
//   - pkg/rgfile: the file writer and reader
//   - pkg/reader: filtered scans across every row group of a file
//   - pkg/arrowconv: conversion to Apache Arrow records and IPC files
//
// # Quick Start
//
// Write a file:
//
//	w, err := rgfile.Create("table.rgf")
//	if err != nil {
//		return err
//	}
//	defer w.Close()
//	w.AddColumn(column.I32, column.Identity, compression.LZ4, 0)
//	w.AddColumn(column.Str, column.Identity, compression.Zstd, 0)
//	// build a rowgroup.RowGroup per batch of rows
//	if err := w.AddRowGroup(rg); err != nil {
//		return err
//	}
//	return w.Finish(true)
//
// Scan it:
//
//	r, err := reader.Open("table.rgf", predicate.And(
//		predicate.GtI32(0, 20),
//		predicate.Contains(1, "0", true, match.End),
//	))
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	for r.Next() {
//		id, _ := r.I32(0)
//		name, _ := r.Str(1)
//		fmt.Println(id, name)
//	}
//	return r.Err()
//
// The strata command (cmd/strata) generates, inspects, filters and exports
// files from the shell.
package strata
