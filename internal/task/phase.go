package task

import "github.com/dukerupert/errand/internal/model"

// phaseOrder is the only forward sequence a delivery may follow.
var phaseOrder = []model.Phase{
	model.PhaseAccepted,
	model.PhasePickedUp,
	model.PhaseOnTheWay,
	model.PhaseDelivered,
	model.PhaseCompleted,
}

// ParsePhase validates a phase name.
func ParsePhase(s string) (model.Phase, bool) {
	for _, p := range phaseOrder {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Next returns the phase that must follow p. The second value is false when
// p is completed or unknown.
func Next(p model.Phase) (model.Phase, bool) {
	for i, q := range phaseOrder {
		if q == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return "", false
}

// CanAdvance reports whether from -> to is a legal phase transition.
// Only the immediate successor is legal: no skips, no going back.
func CanAdvance(from, to model.Phase) bool {
	next, ok := Next(from)
	return ok && next == to
}

// StatusFor maps a phase to the coarse status it implies.
func StatusFor(p model.Phase) model.Status {
	switch p {
	case model.PhaseAccepted:
		return model.StatusAccepted
	case model.PhaseCompleted:
		return model.StatusCompleted
	default:
		return model.StatusInProgress
	}
}

// CheckAdvance validates an AdvancePhase request against the task snapshot.
func CheckAdvance(t *model.Task, caller string, to model.Phase) error {
	if t.Status.Terminal() {
		return Errorf(KindTerminal, t.ID, "status is %s", t.Status)
	}
	if t.AcceptedBy == nil || *t.AcceptedBy != caller {
		return Errorf(KindNotAuthorized, t.ID, "only the accepter may update status")
	}
	if t.CurrentPhase == nil {
		return Errorf(KindInvalidTransition, t.ID, "task has no phase")
	}
	if !CanAdvance(*t.CurrentPhase, to) {
		return Errorf(KindInvalidTransition, t.ID, "%s -> %s", *t.CurrentPhase, to)
	}
	return nil
}

// CheckCancel validates a CancelTask request. Cancelling is allowed for the
// poster while the task is open, or accepted but not yet picked up.
func CheckCancel(t *model.Task, caller string) error {
	if t.Status.Terminal() {
		return Errorf(KindTerminal, t.ID, "status is %s", t.Status)
	}
	if t.CreatedBy != caller {
		return Errorf(KindNotAuthorized, t.ID, "only the poster may cancel")
	}
	switch t.Status {
	case model.StatusOpen:
		return nil
	case model.StatusAccepted:
		if t.CurrentPhase == nil || *t.CurrentPhase == model.PhaseAccepted {
			return nil
		}
	}
	return Errorf(KindInvalidState, t.ID, "cannot cancel in status %s", t.Status)
}

// ClassifyAcceptMiss explains why a conditional accept update matched no row.
// t is nil when the task does not exist.
func ClassifyAcceptMiss(t *model.Task, taskID, caller string) error {
	if t == nil || t.ModerationStatus == model.ModerationRejected {
		return Errorf(KindNotFound, taskID, "no such task")
	}
	if t.CreatedBy == caller {
		return Errorf(KindOwnTask, taskID, "caller is the poster")
	}
	if t.Status.Terminal() {
		return Errorf(KindTerminal, taskID, "status is %s", t.Status)
	}
	return Errorf(KindAlreadyAccepted, taskID, "status is %s", t.Status)
}
