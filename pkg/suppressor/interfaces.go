package suppressor

import (
	"context"

	"epmasuppress/pkg/epma"
)

// Session defines the EPMA workflow steps a run drives
type Session interface {
	OpenInpatientFinder(ctx context.Context) error
	OpenPatient(ctx context.Context, hospitalNumber string) (epma.SearchOutcome, error)
	FindOrderDrugNotes(ctx context.Context) ([]epma.Element, error)
	OpenNote(ctx context.Context, note epma.Element) error
	OrderLink(ctx context.Context) (drug string, linked bool, err error)
	ActiveNoteTitle(ctx context.Context) (string, error)
	SuppressActiveNote(ctx context.Context) (string, error)
}
