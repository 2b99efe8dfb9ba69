package model

import "time"

type EventType string

const (
	EventServerOnlineChanged EventType = "serverOnlineChanged"
	EventServerFreeChanged   EventType = "serverFreeChanged"
	EventPlayerJoined        EventType = "playerJoined"
	EventPlayerLeft          EventType = "playerLeft"
	EventVoteResolved        EventType = "voteResolved"
	EventMatchStateChanged   EventType = "matchStateChanged"
	EventQueueStateChanged   EventType = "queueStateChanged"
	EventQueueAlert          EventType = "queueAlert"
)

type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// ServerFlagChange is the payload of serverOnlineChanged and serverFreeChanged
type ServerFlagChange struct {
	GameServerID string `json:"gameServer"`
	Value        bool   `json:"value"`
}

// PresenceChange is the payload of playerJoined and playerLeft
type PresenceChange struct {
	PlayerID string `json:"playerId"`
}

// MatchStateChange is the payload of matchStateChanged
type MatchStateChange struct {
	MatchID      string     `json:"matchId"`
	Number       int        `json:"number"`
	GameServerID string     `json:"gameServer"`
	State        MatchState `json:"state"`
}
