package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type GoalStatus string

const (
	GoalNotStarted GoalStatus = "not_started"
	GoalOnTrack    GoalStatus = "on_track"
	GoalAtRisk     GoalStatus = "at_risk"
	GoalOffTrack   GoalStatus = "off_track"
	GoalCompleted  GoalStatus = "completed"
)

var GoalStatuses = []GoalStatus{GoalNotStarted, GoalOnTrack, GoalAtRisk, GoalOffTrack, GoalCompleted}

type Goal struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	ProjectID      *uuid.UUID `json:"project_id,omitempty"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	TargetValue    float64    `json:"target_value"`
	CurrentValue   float64    `json:"current_value"`
	Unit           string     `json:"unit"`
	Status         GoalStatus `json:"status"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Progress 百分比，限制在 0–100
func (g *Goal) Progress() float64 {
	if g.TargetValue <= 0 {
		if g.CurrentValue > 0 {
			return 100
		}
		return 0
	}
	p := g.CurrentValue / g.TargetValue * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func (g *Goal) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return g.ID.String(), true
	case "title":
		return g.Title, true
	case "description":
		return g.Description, true
	case "status":
		return string(g.Status), true
	case "project_id":
		return uuidOrNil(g.ProjectID), true
	case "owner_id":
		return g.OwnerID.String(), true
	case "target_value":
		return g.TargetValue, true
	case "current_value":
		return g.CurrentValue, true
	case "progress":
		return g.Progress(), true
	case "due_date":
		return timeOrNil(g.DueDate), true
	case "created_at":
		return g.CreatedAt, true
	}
	return nil, false
}

// MarshalJSON 附带计算出的 progress
func (g Goal) MarshalJSON() ([]byte, error) {
	type alias Goal
	return json.Marshal(struct {
		alias
		Progress float64 `json:"progress"`
	}{alias(g), g.Progress()})
}
