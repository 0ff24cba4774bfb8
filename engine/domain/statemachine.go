package domain

import "time"

// allowedTransitions is the document lifecycle graph (§4.1). Only this map
// may authorize a transition; nothing else in the codebase is allowed to
// mutate Document.Status.
var allowedTransitions = map[DocumentStatus][]DocumentStatus{
	StatusUploaded:   {StatusValidated, StatusRejected},
	StatusValidated:  {StatusQueued},
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusProcessed, StatusFailed},
	StatusProcessed:  {StatusArchived, StatusDeleted},
	StatusFailed:     {StatusQueued},
	StatusArchived:   {StatusDeleted},
	StatusRejected:   {},
	StatusDeleted:    {},
}

func allowed(from, to DocumentStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// TransitionTo validates and applies a status transition on doc, stamping
// the corresponding timestamp atomically with the status write (§4.1, §8).
// It never mutates doc on failure.
func TransitionTo(doc Document, to DocumentStatus, now time.Time) (Document, error) {
	if to == StatusDeleted && doc.LegalHold {
		return doc, Wrap(KindConflict, TypeLegalHold, "document is under legal hold", ErrLegalHoldViolation)
	}
	if !allowed(doc.Status, to) {
		return doc, Wrap(KindConflict, TypeConflict,
			"illegal transition "+string(doc.Status)+" -> "+string(to), ErrIllegalStateTransition)
	}

	next := doc
	next.Status = to
	switch to {
	case StatusValidated:
		next.ValidatedAt = &now
	case StatusQueued:
		next.QueuedAt = &now
	case StatusProcessing:
		next.ProcessingAt = &now
	case StatusProcessed:
		next.ProcessedAt = &now
	case StatusFailed:
		next.FailedAt = &now
	case StatusArchived:
		next.ArchivedAt = &now
	case StatusRejected:
		next.RejectedAt = &now
	case StatusDeleted:
		next.DeletedAt = &now
	}
	return next, nil
}

// CanTransition reports whether a transition is structurally legal without
// applying it — used by callers that want to branch before committing.
func CanTransition(from, to DocumentStatus, legalHold bool) bool {
	if to == StatusDeleted && legalHold {
		return false
	}
	return allowed(from, to)
}
