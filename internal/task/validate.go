package task

import (
	"strings"

	"github.com/dukerupert/errand/internal/model"
)

// Categories lists the task categories a poster may pick.
var Categories = []string{"food", "groceries", "pickup", "delivery", "printing", "other"}

// Normalize trims and defaults a new task, returning an INVALID_INPUT error
// when a field cannot be used.
func Normalize(in model.NewTask) (model.NewTask, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.StoreName = strings.TrimSpace(in.StoreName)
	in.DropoffAddress = strings.TrimSpace(in.DropoffAddress)
	in.DropoffInstructions = strings.TrimSpace(in.DropoffInstructions)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))

	if in.Title == "" {
		return in, Errorf(KindInvalidInput, "", "title is required")
	}
	if len(in.Title) > 120 {
		return in, Errorf(KindInvalidInput, "", "title is too long")
	}
	if in.RewardAmount < 0 {
		return in, Errorf(KindInvalidInput, "", "reward_amount must not be negative")
	}
	if in.EstimatedMinutes < 0 {
		return in, Errorf(KindInvalidInput, "", "estimated_minutes must not be negative")
	}

	if in.Category == "" {
		in.Category = "other"
	}
	known := false
	for _, c := range Categories {
		if c == in.Category {
			known = true
			break
		}
	}
	if !known {
		return in, Errorf(KindInvalidInput, "", "unknown category %q", in.Category)
	}

	switch in.Urgency {
	case "":
		in.Urgency = model.UrgencyNormal
	case model.UrgencyLow, model.UrgencyNormal, model.UrgencyHigh:
	default:
		return in, Errorf(KindInvalidInput, "", "unknown urgency %q", in.Urgency)
	}
	return in, nil
}
