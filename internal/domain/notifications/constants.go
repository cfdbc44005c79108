package notifications

const (
	TypeReviewAssigned = "review_assigned"
	TypeCycleActivated = "cycle_activated"
)
