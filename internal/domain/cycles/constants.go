package cycles

const (
	StatusDraft  = "draft"
	StatusActive = "active"
	StatusClosed = "closed"
)

var Statuses = []string{StatusDraft, StatusActive, StatusClosed}

const (
	defaultListLimit = 50
	maxNameLength    = 200
)
