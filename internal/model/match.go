package model

import "time"

type MatchState string

const (
	MatchLaunching MatchState = "launching"
	MatchRunning   MatchState = "running"
	MatchEnded     MatchState = "ended"
)

// MatchSlot freezes a player's class and skill at launch time
type MatchSlot struct {
	PlayerID  string `json:"playerId" bson:"playerId"`
	SteamID   string `json:"steamId,omitempty" bson:"steamId,omitempty"`
	GameClass string `json:"gameClass" bson:"gameClass"`
	Skill     int    `json:"skill" bson:"skill"`
}

type Match struct {
	ID           string      `json:"id" bson:"_id,omitempty"`
	Number       int         `json:"number" bson:"number"`
	Map          string      `json:"map" bson:"map"`
	GameServerID string      `json:"gameServer" bson:"gameServer"`
	State        MatchState  `json:"state" bson:"state"`
	Slots        []MatchSlot `json:"slots" bson:"slots"`
	LaunchedAt   time.Time   `json:"launchedAt" bson:"launchedAt"`
	EndedAt      *time.Time  `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// Active reports whether admin overrides still apply to the match.
func (m *Match) Active() bool {
	return m.State == MatchLaunching || m.State == MatchRunning
}

// Skills returns the frozen skill snapshot keyed by player id
func (m *Match) Skills() map[string]int {
	out := make(map[string]int, len(m.Slots))
	for _, s := range m.Slots {
		out[s.PlayerID] = s.Skill
	}
	return out
}

// RosterEntry is one seated player handed from the queue to the launcher
type RosterEntry struct {
	PlayerID  string `json:"playerId"`
	GameClass string `json:"gameClass"`
	SteamID   string `json:"steamId,omitempty"`
}
