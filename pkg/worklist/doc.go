// Package worklist reads the ward's suppression spreadsheet.
//
// The sheet has no header. One column holds hospital numbers and another
// the drug whose "**Order Drug**" notes should be suppressed; a patient
// appears once per drug. Read groups the rows into one Patient per
// hospital number, in ascending order, with drug names upper-cased and
// stripped of whitespace so they compare equal to EPMA's order links.
package worklist
