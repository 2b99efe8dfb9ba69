package model

import "time"

// MapVoteRecord is the persisted outcome of a map vote round
type MapVoteRecord struct {
	ID         string            `json:"id" bson:"_id,omitempty"`
	RoundID    string            `json:"roundId" bson:"roundId"`
	Candidates []string          `json:"candidates" bson:"candidates"`
	Votes      map[string]string `json:"votes" bson:"votes"`
	Result     string            `json:"result" bson:"result"`
	NoQuorum   bool              `json:"noQuorum" bson:"noQuorum"`
	ResolvedAt time.Time         `json:"resolvedAt" bson:"resolvedAt"`
}

// VoteResult is delivered once per round
type VoteResult struct {
	RoundID  string `json:"roundId"`
	Map      string `json:"map"`
	NoQuorum bool   `json:"noQuorum"`
}
