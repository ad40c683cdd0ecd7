// Package barcode extracts cell barcodes and UMIs from read 1 of single-cell
// read pairs.
//
// The layout of read 1 is described by a Pattern such as
// "C8L16C8L16C8U8T18": cell barcode blocks (C), linkers (L), the UMI (U) and
// the poly-T anchor (T). Cell barcode blocks are corrected against a
// whitelist with a MismatchIndex, which maps every sequence within a small
// number of substitutions of a whitelist entry to that entry.
//
// An Extractor filters each pair in order: poly-T, barcode and UMI quality,
// linker, then barcode correction. Read 2 of every surviving pair is written
// with the name "@{barcode}_{umi}_{name}", so that the identity survives
// alignment.
package barcode
