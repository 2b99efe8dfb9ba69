package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pickupd/internal/model"
	"pickupd/internal/repository"

	"github.com/google/uuid"
)

type voteRound struct {
	id         string
	candidates []string
	eligible   map[string]bool
	votes      map[string]string
	deadline   time.Time
	timer      *time.Timer
	closed     bool
}

// MapVoteService runs one timed map vote at a time. A round resolves at its
// deadline or as soon as every eligible player has voted, whichever is first.
type MapVoteService struct {
	history repository.MapVoteRepo
	events  *EventBus

	mu        sync.Mutex
	active    *voteRound
	listeners []func(model.VoteResult)
}

// NewMapVoteService creates a coordinator. history may be nil.
func NewMapVoteService(history repository.MapVoteRepo, events *EventBus) *MapVoteService {
	return &MapVoteService{
		history: history,
		events:  events,
	}
}

// OnResolved registers a listener for round results
func (s *MapVoteService) OnResolved(fn func(model.VoteResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// StartRound opens a new round and returns its id
func (s *MapVoteService) StartRound(candidates, eligible []string, duration time.Duration) (string, error) {
	if len(candidates) == 0 || len(eligible) == 0 {
		return "", ErrInvalidConfiguration
	}
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			return "", fmt.Errorf("%w: duplicate or empty candidate %q", ErrInvalidConfiguration, c)
		}
		seen[c] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && !s.active.closed {
		return "", ErrRoundInProgress
	}

	round := &voteRound{
		id:         uuid.New().String(),
		candidates: append([]string(nil), candidates...),
		eligible:   make(map[string]bool, len(eligible)),
		votes:      make(map[string]string),
		deadline:   time.Now().Add(duration),
	}
	for _, p := range eligible {
		round.eligible[p] = true
	}
	round.timer = time.AfterFunc(duration, func() { s.expire(round.id) })
	s.active = round

	log.Printf("Map vote %s started: %v", round.id, round.candidates)
	return round.id, nil
}

// CastVote records a player's choice; a later vote replaces an earlier one
func (s *MapVoteService) CastVote(roundID, playerID, mapName string) error {
	s.mu.Lock()
	round := s.active
	if round == nil || round.id != roundID || round.closed || !time.Now().Before(round.deadline) {
		s.mu.Unlock()
		return ErrRoundClosed
	}
	if !round.eligible[playerID] {
		s.mu.Unlock()
		return ErrNotEligible
	}
	if !contains(round.candidates, mapName) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidChoice, mapName)
	}
	round.votes[playerID] = mapName

	var result *model.VoteResult
	if len(round.votes) == len(round.eligible) {
		result = s.resolveLocked(round)
	}
	listeners := s.listeners
	s.mu.Unlock()

	if result != nil {
		s.deliver(round, result, listeners)
	}
	return nil
}

// Cancel abandons a round without a result
func (s *MapVoteService) Cancel(roundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round := s.active
	if round == nil || round.id != roundID || round.closed {
		return
	}
	round.closed = true
	round.timer.Stop()
	log.Printf("Map vote %s cancelled", roundID)
}

// Votes returns a copy of the votes of the active round
func (s *MapVoteService) Votes(roundID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	if s.active == nil || s.active.id != roundID {
		return out
	}
	for p, m := range s.active.votes {
		out[p] = m
	}
	return out
}

// Recent returns the latest resolved rounds, newest first
func (s *MapVoteService) Recent(ctx context.Context, limit int64) ([]*model.MapVoteRecord, error) {
	if s.history == nil {
		return []*model.MapVoteRecord{}, nil
	}
	records, err := s.history.Recent(ctx, limit)
	if err != nil {
		return nil, storageErr("list map votes", err)
	}
	if records == nil {
		records = []*model.MapVoteRecord{}
	}
	return records, nil
}

func (s *MapVoteService) expire(roundID string) {
	s.mu.Lock()
	round := s.active
	if round == nil || round.id != roundID || round.closed {
		s.mu.Unlock()
		return
	}
	result := s.resolveLocked(round)
	listeners := s.listeners
	s.mu.Unlock()

	s.deliver(round, result, listeners)
}

// resolveLocked closes the round and tallies it exactly once
func (s *MapVoteService) resolveLocked(round *voteRound) *model.VoteResult {
	round.closed = true
	round.timer.Stop()

	mapName, noQuorum := Tally(round.candidates, round.votes)
	return &model.VoteResult{RoundID: round.id, Map: mapName, NoQuorum: noQuorum}
}

func (s *MapVoteService) deliver(round *voteRound, result *model.VoteResult, listeners []func(model.VoteResult)) {
	if result.NoQuorum {
		log.Printf("Map vote %s had no votes, falling back to %s", round.id, result.Map)
	} else {
		log.Printf("Map vote %s resolved: %s", round.id, result.Map)
	}

	for _, fn := range listeners {
		fn(*result)
	}
	s.events.Publish(model.EventVoteResolved, *result)

	if s.history == nil {
		return
	}
	record := &model.MapVoteRecord{
		RoundID:    round.id,
		Candidates: round.candidates,
		Votes:      round.votes,
		Result:     result.Map,
		NoQuorum:   result.NoQuorum,
		ResolvedAt: time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.Create(ctx, record); err != nil {
		log.Printf("Failed to store map vote %s: %v", round.id, storageErr("create map vote", err))
	}
}

// Tally picks the candidate with the most votes. Ties go to the candidate
// listed first. With no votes it falls back to the first candidate and
// reports noQuorum.
func Tally(candidates []string, votes map[string]string) (string, bool) {
	if len(votes) == 0 {
		return candidates[0], true
	}
	counts := make(map[string]int, len(candidates))
	for _, m := range votes {
		counts[m]++
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best, false
}

// CandidatesFor picks up to n maps from the pool in configured order,
// starting right after lastPlayed and skipping it.
func CandidatesFor(pool []string, lastPlayed string, n int) []string {
	start := 0
	for i, m := range pool {
		if m == lastPlayed {
			start = i + 1
			break
		}
	}
	out := make([]string, 0, n)
	for i := 0; i < len(pool) && len(out) < n; i++ {
		m := pool[(start+i)%len(pool)]
		if m == lastPlayed && len(pool) > 1 {
			continue
		}
		if !contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
