package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pickupd/internal/model"
	"pickupd/internal/repository"
)

// LauncherService drives a match from launching to running to ended and
// hands its server back to the pool when it ends.
type LauncherService struct {
	matchRepo  repository.MatchRepo
	playerRepo repository.PlayerRepo
	pool       *GameServerService
	control    ControlPlane
	events     *EventBus

	// serializes Launch so match numbers stay sequential
	launchMu sync.Mutex
	// serializes state changes of existing matches
	stateMu sync.Mutex
}

// NewLauncherService creates a new match launcher
func NewLauncherService(
	matchRepo repository.MatchRepo,
	playerRepo repository.PlayerRepo,
	pool *GameServerService,
	control ControlPlane,
	events *EventBus,
) *LauncherService {
	return &LauncherService{
		matchRepo:  matchRepo,
		playerRepo: playerRepo,
		pool:       pool,
		control:    control,
		events:     events,
	}
}

// Launch configures and starts a match on an already taken server. When the
// control plane call fails no match is recorded and ErrControlPlane is
// returned; releasing the server is the caller's job.
func (s *LauncherService) Launch(ctx context.Context, server *model.GameServer, mapName string, roster []model.RosterEntry) (*model.Match, error) {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	last, err := s.matchRepo.LastNumber(ctx)
	if err != nil {
		return nil, storageErr("read last match number", err)
	}

	slots, roster, err := s.snapshot(ctx, roster)
	if err != nil {
		return nil, err
	}

	match := &model.Match{
		Number:       last + 1,
		Map:          mapName,
		GameServerID: server.ID,
		State:        model.MatchLaunching,
		Slots:        slots,
		LaunchedAt:   time.Now(),
	}

	log.Printf("Launching match #%d on %s (%s)", match.Number, server.Name, mapName)
	if err := s.control.ConfigureAndStart(ctx, server, mapName, roster); err != nil {
		log.Printf("Failed to launch match #%d: %v", match.Number, err)
		return nil, controlPlaneErr(err)
	}

	if err := s.matchRepo.Create(ctx, match); err != nil {
		return nil, storageErr("create match", err)
	}
	s.publish(match)

	match.State = model.MatchRunning
	if err := s.matchRepo.Update(ctx, match); err != nil {
		return nil, storageErr("update match", err)
	}
	s.publish(match)

	log.Printf("Match #%d is running", match.Number)
	return match, nil
}

// snapshot freezes each player's skill for their class and fills in the
// SteamIDs the game server reserves seats by
func (s *LauncherService) snapshot(ctx context.Context, roster []model.RosterEntry) ([]model.MatchSlot, []model.RosterEntry, error) {
	ids := make([]string, len(roster))
	for i, r := range roster {
		ids[i] = r.PlayerID
	}
	players, err := s.playerRepo.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, storageErr("load players", err)
	}

	slots := make([]model.MatchSlot, len(roster))
	entries := make([]model.RosterEntry, len(roster))
	for i, r := range roster {
		skill := 1
		if p, ok := players[r.PlayerID]; ok {
			skill = p.SkillFor(r.GameClass)
			r.SteamID = p.SteamID
		}
		slots[i] = model.MatchSlot{PlayerID: r.PlayerID, SteamID: r.SteamID, GameClass: r.GameClass, Skill: skill}
		entries[i] = r
	}
	return slots, entries, nil
}

// MarkEnded ends a match and frees its server. Ending an ended match is a no-op.
func (s *LauncherService) MarkEnded(ctx context.Context, matchID string) (*model.Match, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	match, err := s.get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.Active() {
		return match, nil
	}
	return s.endLocked(ctx, match)
}

// MarkEndedByServer ends the active match on a server, if there is one
func (s *LauncherService) MarkEndedByServer(ctx context.Context, gameServerID string) (*model.Match, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	match, err := s.matchRepo.GetActiveByServer(ctx, gameServerID)
	if err != nil {
		return nil, storageErr("find active match", err)
	}
	if match == nil {
		return nil, fmt.Errorf("%w: no active match on game server %s", ErrNotFound, gameServerID)
	}
	return s.endLocked(ctx, match)
}

// ForceEnd is the administrative end of a launching or running match
func (s *LauncherService) ForceEnd(ctx context.Context, matchID string) (*model.Match, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	match, err := s.get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.Active() {
		return match, fmt.Errorf("%w: match #%d already ended", ErrNotApplicable, match.Number)
	}
	log.Printf("Match #%d force-ended", match.Number)
	return s.endLocked(ctx, match)
}

// Reinitialize re-issues the launch configuration on the match's server.
// If that fails the match is ended and its server released.
func (s *LauncherService) Reinitialize(ctx context.Context, matchID string) (*model.Match, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	match, err := s.get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.Active() {
		return match, fmt.Errorf("%w: match #%d already ended", ErrNotApplicable, match.Number)
	}
	server, err := s.pool.Get(match.GameServerID)
	if err != nil {
		return nil, err
	}

	roster := make([]model.RosterEntry, len(match.Slots))
	for i, slot := range match.Slots {
		roster[i] = model.RosterEntry{PlayerID: slot.PlayerID, GameClass: slot.GameClass, SteamID: slot.SteamID}
	}

	log.Printf("Reinitializing match #%d on %s", match.Number, server.Name)
	if cerr := s.control.ConfigureAndStart(ctx, server, match.Map, roster); cerr != nil {
		log.Printf("Failed to reinitialize match #%d: %v", match.Number, cerr)
		if _, err := s.endLocked(ctx, match); err != nil {
			return nil, err
		}
		return match, controlPlaneErr(cerr)
	}

	if match.State != model.MatchRunning {
		match.State = model.MatchRunning
		if err := s.matchRepo.Update(ctx, match); err != nil {
			return nil, storageErr("update match", err)
		}
		s.publish(match)
	}
	return match, nil
}

func (s *LauncherService) endLocked(ctx context.Context, match *model.Match) (*model.Match, error) {
	now := time.Now()
	match.State = model.MatchEnded
	match.EndedAt = &now
	if err := s.matchRepo.Update(ctx, match); err != nil {
		return nil, storageErr("update match", err)
	}
	s.publish(match)
	log.Printf("Match #%d ended", match.Number)

	if _, err := s.pool.Release(ctx, match.GameServerID); err != nil {
		return match, err
	}
	return match, nil
}

// Get returns a match by id
func (s *LauncherService) Get(ctx context.Context, matchID string) (*model.Match, error) {
	return s.get(ctx, matchID)
}

// GetByNumber returns a match by its sequential number
func (s *LauncherService) GetByNumber(ctx context.Context, number int) (*model.Match, error) {
	match, err := s.matchRepo.GetByNumber(ctx, number)
	if err != nil {
		return nil, storageErr("get match", err)
	}
	if match == nil {
		return nil, fmt.Errorf("%w: match #%d", ErrNotFound, number)
	}
	return match, nil
}

// List returns a page of matches sorted by launch time and the total count
func (s *LauncherService) List(ctx context.Context, ascending bool, limit, offset int64) ([]*model.Match, int64, error) {
	matches, err := s.matchRepo.List(ctx, ascending, limit, offset)
	if err != nil {
		return nil, 0, storageErr("list matches", err)
	}
	count, err := s.matchRepo.Count(ctx)
	if err != nil {
		return nil, 0, storageErr("count matches", err)
	}
	return matches, count, nil
}

// LastMap returns the map of the most recent match, "" if none
func (s *LauncherService) LastMap(ctx context.Context) (string, error) {
	last, err := s.matchRepo.LastNumber(ctx)
	if err != nil {
		return "", storageErr("read last match number", err)
	}
	if last == 0 {
		return "", nil
	}
	match, err := s.GetByNumber(ctx, last)
	if err != nil {
		return "", err
	}
	return match.Map, nil
}

func (s *LauncherService) get(ctx context.Context, matchID string) (*model.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, storageErr("get match", err)
	}
	if match == nil {
		return nil, fmt.Errorf("%w: match %s", ErrNotFound, matchID)
	}
	return match, nil
}

func (s *LauncherService) publish(match *model.Match) {
	s.events.Publish(model.EventMatchStateChanged, model.MatchStateChange{
		MatchID:      match.ID,
		Number:       match.Number,
		GameServerID: match.GameServerID,
		State:        match.State,
	})
}

func controlPlaneErr(err error) error {
	if errors.Is(err, ErrControlPlane) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrControlPlane, err)
}
