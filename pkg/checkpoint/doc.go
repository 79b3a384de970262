// Package checkpoint records which patients of a worklist have been
// processed so an interrupted run can resume.
//
// One checkpoint exists per worklist file, keyed on its absolute path,
// under the platform data directory:
//   - Linux: $XDG_DATA_HOME/epmasuppress/checkpoints/ (or ~/.local/share)
//   - macOS: ~/Library/Application Support/epmasuppress/checkpoints/
//   - Windows: %APPDATA%/epmasuppress/checkpoints/
//
// A patient is recorded only after all of its notes were evaluated, so a
// resumed run re-opens at most one half-finished patient. Re-suppressing
// is harmless because suppressed notes drop out of the note search.
package checkpoint
