package model

type QueueStateName string

const (
	QueueWaiting    QueueStateName = "waiting"
	QueueVoting     QueueStateName = "voting"
	QueueAllocating QueueStateName = "allocating"
	QueueLaunching  QueueStateName = "launching"
)

type QueueSlot struct {
	ID        int    `json:"id"`
	GameClass string `json:"gameClass"`
	PlayerID  string `json:"playerId,omitempty"`
	Ready     bool   `json:"ready"`
}

// QueueState is a point-in-time snapshot of the queue
type QueueState struct {
	State        QueueStateName `json:"state"`
	Slots        []QueueSlot    `json:"slots"`
	Status       string         `json:"status,omitempty"`
	RoundID      string         `json:"roundId,omitempty"`
	Candidates   []string       `json:"candidates,omitempty"`
	Map          string         `json:"map,omitempty"`
	GameServerID string         `json:"gameServer,omitempty"`
	LaunchFails  int            `json:"launchFailures"`
}

// Seated returns the number of slots holding a player.
func (q QueueState) Seated() int {
	n := 0
	for _, s := range q.Slots {
		if s.PlayerID != "" {
			n++
		}
	}
	return n
}
