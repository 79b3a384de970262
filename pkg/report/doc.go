// Package report writes the audit trail of a suppression run.
//
// Every note suppressed (or, in dry-run mode, that would have been), every
// linked note left alone and every patient that could not be opened is
// written as one JSON line. Files are named
// suppressions-<date>-<runid>.jsonl, with a UUID run ID shared with the
// checkpoint, so the ward can reconcile a run against the worklist.
package report
