package feed

// Event types written by vendors and the poller.
const (
	EventRelayed = "relayed"
	EventReplied = "replied"
	EventDM      = "dm"
	EventSkipped = "skipped"
)

var KnownEventTypes = []string{EventRelayed, EventReplied, EventDM, EventSkipped}
