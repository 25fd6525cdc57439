package task

// XP and credit amounts granted by lifecycle transitions.
const (
	XPPosted    = 5
	XPAccepted  = 10
	XPCompleted = 50
	XPFulfilled = 5

	XPPerLevel = 100
)

// Level derives a user's level from their XP total.
func Level(xp int) int {
	if xp < 0 {
		return 1
	}
	return 1 + xp/XPPerLevel
}
