package domain

import "time"

// Patch is a typed partial update applied by the repositories. Nil fields
// are left untouched. ClearDueDate distinguishes "unset the due date" from
// "leave it alone".
type Patch struct {
	Content           *string
	Description       *string
	ProjectID         *string
	Priority          *int
	DueDate           *time.Time
	ClearDueDate      bool
	Completed         *bool
	EstimatedDuration *int
	ActualDuration    *int
	EnergyLevel       *int
	ContextTags       *[]string
	Labels            *[]string
	Dependencies      *[]int64
	SyncStatus        *SyncStatus
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Content == nil && p.Description == nil && p.ProjectID == nil &&
		p.Priority == nil && p.DueDate == nil && !p.ClearDueDate &&
		p.Completed == nil && p.EstimatedDuration == nil && p.ActualDuration == nil &&
		p.EnergyLevel == nil && p.ContextTags == nil && p.Labels == nil &&
		p.Dependencies == nil && p.SyncStatus == nil
}
