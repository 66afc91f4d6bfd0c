// Package lifecycle owns the task status state machine and the review gates.
package lifecycle

import (
	"slices"

	"github.com/agencyops/taskflow/pkg/models"
)

// edges is the complete lifecycle graph. Anything not listed is an invalid transition.
var edges = map[models.TaskStatus][]models.TaskStatus{
	models.TaskStatusBacklog:        {models.TaskStatusInProgress},
	models.TaskStatusInProgress:     {models.TaskStatusInternalReview},
	models.TaskStatusInternalReview: {models.TaskStatusClientReview, models.TaskStatusInProgress},
	models.TaskStatusClientReview:   {models.TaskStatusApproved, models.TaskStatusInProgress},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to models.TaskStatus) bool {
	return slices.Contains(edges[from], to)
}

// NextStatuses returns the statuses reachable from status in one move.
func NextStatuses(status models.TaskStatus) []models.TaskStatus {
	return slices.Clone(edges[status])
}

// Decision is the outcome of an internal or client review.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// isClientRejection reports whether the move sends a client-reviewed task back for revision.
func isClientRejection(from, to models.TaskStatus) bool {
	return from == models.TaskStatusClientReview && to == models.TaskStatusInProgress
}

// applyEffects mutates task for the move from -> to. The caller has validated the edge.
func applyEffects(task *models.Task, to models.TaskStatus, reason string) {
	from := task.Status
	task.Status = to

	switch {
	case to == models.TaskStatusClientReview:
		pending := models.ClientViewPending
		task.ClientViewStatus = &pending
	case from == models.TaskStatusClientReview && to == models.TaskStatusApproved:
		approved := models.ClientViewApproved
		task.ClientViewStatus = &approved
		task.LastClientFeedback = nil
	case isClientRejection(from, to):
		rejected := models.ClientViewRejected
		task.ClientViewStatus = &rejected
		task.LastClientFeedback = &reason
		task.InternalRevisionCount++
	}
}
