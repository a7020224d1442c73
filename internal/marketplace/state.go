// Package marketplace is the gig lifecycle: which actions are legal on a gig
// and its applications, what they change, and whether a hire fits the budget.
package marketplace

import "gigflow/internal/models"

// CanTransitionGig reports whether the gig state machine has an edge from -> to.
func CanTransitionGig(from, to models.GigStatus) bool {
	switch from {
	case models.GigStatusOpen:
		switch to {
		case models.GigStatusInReview, models.GigStatusHired, models.GigStatusClosed, models.GigStatusCancelled:
			return true
		}
	case models.GigStatusInReview:
		switch to {
		case models.GigStatusHired, models.GigStatusClosed, models.GigStatusCancelled:
			return true
		}
	case models.GigStatusHired:
		switch to {
		case models.GigStatusClosed, models.GigStatusCancelled:
			return true
		}
	case models.GigStatusClosed, models.GigStatusCancelled:
		return false
	}
	return false
}

// CanTransitionApplication allows moves out of pending only.
func CanTransitionApplication(from, to models.ApplicationStatus) bool {
	switch from {
	case models.ApplicationStatusPending:
		switch to {
		case models.ApplicationStatusHired, models.ApplicationStatusRejected:
			return true
		}
	case models.ApplicationStatusHired, models.ApplicationStatusRejected:
		return false
	}
	return false
}
