package model

// Player is the read-only view of a player profile used by the queue.
// Presence is not stored here; see the presence service.
type Player struct {
	ID               string         `json:"id" bson:"_id,omitempty"`
	SteamID          string         `json:"steamId" bson:"steamId"`
	Name             string         `json:"name" bson:"name"`
	HasAcceptedRules bool           `json:"hasAcceptedRules" bson:"hasAcceptedRules"`
	Skill            map[string]int `json:"-" bson:"skill,omitempty"`
}

// SkillFor returns the player's rating for a game class, 1 if unrated.
func (p *Player) SkillFor(gameClass string) int {
	if v, ok := p.Skill[gameClass]; ok {
		return v
	}
	return 1
}
