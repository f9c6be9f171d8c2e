// Package textutil provides title normalization and similarity scoring.
//
// Titles arrive from providers in mixed scripts and widths. NormalizeTitle
// folds them onto a comparable form; Fingerprint builds a term-frequency
// vector from Latin words and CJK character bigrams so CosineSimilarity can
// rank search results against a known title.
package textutil
