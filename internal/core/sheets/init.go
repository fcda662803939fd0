// Package sheets registers the column contract of every spreadsheet kind with
// the core registry. Import this package to ensure all sheets are registered.
package sheets
