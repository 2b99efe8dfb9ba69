package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"pickupd/internal/model"
	"pickupd/internal/repository"
)

// GameServerService owns the registry of game servers and their allocation
// state. All mutations are serialized by mu and written through to storage
// before the in-memory copy changes.
type GameServerService struct {
	repo     repository.GameServerRepo
	resolver Resolver
	events   *EventBus

	mu      sync.Mutex
	servers map[string]*model.GameServer
}

// NewGameServerService creates a new pool manager
func NewGameServerService(repo repository.GameServerRepo, resolver Resolver, events *EventBus) *GameServerService {
	return &GameServerService{
		repo:     repo,
		resolver: resolver,
		events:   events,
		servers:  make(map[string]*model.GameServer),
	}
}

// Load hydrates the registry from storage
func (s *GameServerService) Load(ctx context.Context) error {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return storageErr("load game servers", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = make(map[string]*model.GameServer, len(all))
	for _, gs := range all {
		s.servers[gs.ID] = gs
	}
	log.Printf("Loaded %d game servers", len(all))
	return nil
}

// Register resolves the server address and adds it to the pool
func (s *GameServerService) Register(ctx context.Context, req *model.RegisterGameServerRequest) (*model.GameServer, error) {
	ips, err := s.resolver.Resolve(ctx, req.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolution, req.Address, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: %s: no addresses", ErrResolution, req.Address)
	}
	log.Printf("Resolved addresses for %s: %v", req.Address, ips)

	s.mu.Lock()
	defer s.mu.Unlock()

	server := &model.GameServer{
		Name:                req.Name,
		Address:             req.Address,
		Port:                req.Port,
		RconPassword:        req.RconPassword,
		ResolvedIPAddresses: ips,
		IsOnline:            false,
		IsFree:              true,
		VoiceChannelName:    req.VoiceChannelName,
		CreatedAt:           time.Now(),
	}
	if server.VoiceChannelName == "" {
		server.VoiceChannelName = s.nextVoiceChannelLocked()
	}

	if err := s.repo.Create(ctx, server); err != nil {
		return nil, storageErr("create game server", err)
	}
	s.servers[server.ID] = server

	log.Printf("Game server %s (%s) added", server.ID, server.Name)
	return copyServer(server), nil
}

// nextVoiceChannelLocked returns the highest numeric channel plus one
func (s *GameServerService) nextVoiceChannelLocked() string {
	highest := 0
	for _, gs := range s.servers {
		n, err := strconv.Atoi(gs.VoiceChannelName)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return strconv.Itoa(highest + 1)
}

// List returns a snapshot of all servers, oldest first
func (s *GameServerService) List() []*model.GameServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Get returns a server by id
func (s *GameServerService) Get(id string) (*model.GameServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gs, ok := s.servers[id]
	if !ok {
		return nil, fmt.Errorf("%w: game server %s", ErrNotFound, id)
	}
	return copyServer(gs), nil
}

// FindFree returns an online and free server without allocating it, or nil
func (s *GameServerService) FindFree() *model.GameServer {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, gs := range s.sortedLocked() {
		if gs.Allocatable() {
			return gs
		}
	}
	return nil
}

// Take marks a server as busy. Only one caller can take a free server.
func (s *GameServerService) Take(ctx context.Context, id string) (*model.GameServer, error) {
	s.mu.Lock()
	gs, ok := s.servers[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: game server %s", ErrNotFound, id)
	}
	if !gs.IsFree {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrServerNotFree, id)
	}
	if err := s.repo.SetFree(ctx, id, false); err != nil {
		s.mu.Unlock()
		return nil, storageErr("take game server", err)
	}
	gs.IsFree = false
	out := copyServer(gs)
	s.mu.Unlock()

	log.Printf("Game server %s (%s) marked as taken", id, gs.Name)
	s.events.Publish(model.EventServerFreeChanged, model.ServerFlagChange{GameServerID: id, Value: false})
	return out, nil
}

// Release marks a server as free. Releasing a free server is a no-op.
func (s *GameServerService) Release(ctx context.Context, id string) (*model.GameServer, error) {
	s.mu.Lock()
	gs, ok := s.servers[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: game server %s", ErrNotFound, id)
	}
	if gs.IsFree {
		out := copyServer(gs)
		s.mu.Unlock()
		return out, nil
	}
	if err := s.repo.SetFree(ctx, id, true); err != nil {
		s.mu.Unlock()
		return nil, storageErr("release game server", err)
	}
	gs.IsFree = true
	out := copyServer(gs)
	s.mu.Unlock()

	log.Printf("Game server %s (%s) marked as free", id, gs.Name)
	s.events.Publish(model.EventServerFreeChanged, model.ServerFlagChange{GameServerID: id, Value: true})
	return out, nil
}

// SetOnline records the result of a health probe. It never touches IsFree.
func (s *GameServerService) SetOnline(ctx context.Context, id string, online bool) error {
	s.mu.Lock()
	gs, ok := s.servers[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: game server %s", ErrNotFound, id)
	}
	if gs.IsOnline == online {
		s.mu.Unlock()
		return nil
	}
	if err := s.repo.SetOnline(ctx, id, online); err != nil {
		s.mu.Unlock()
		return storageErr("update game server status", err)
	}
	gs.IsOnline = online
	name := gs.Name
	s.mu.Unlock()

	if online {
		log.Printf("Game server %s (%s) is online", id, name)
	} else {
		log.Printf("Game server %s (%s) is offline", id, name)
	}
	s.events.Publish(model.EventServerOnlineChanged, model.ServerFlagChange{GameServerID: id, Value: online})
	return nil
}

// Remove deregisters a server. The registry is unchanged on any failure.
func (s *GameServerService) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[id]; !ok {
		return fmt.Errorf("%w: game server %s", ErrNotFound, id)
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return storageErr("remove game server", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrRemoval, id)
	}
	delete(s.servers, id)

	log.Printf("Game server %s removed", id)
	return nil
}

// LookupByEndpoint finds the server an external event came from, or nil
func (s *GameServerService) LookupByEndpoint(ip string, port int) *model.GameServer {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := strconv.Itoa(port)
	for _, gs := range s.sortedLocked() {
		if gs.HasEndpoint(ip, p) {
			return gs
		}
	}
	return nil
}

func (s *GameServerService) sortedLocked() []*model.GameServer {
	list := make([]*model.GameServer, 0, len(s.servers))
	for _, gs := range s.servers {
		list = append(list, copyServer(gs))
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func copyServer(gs *model.GameServer) *model.GameServer {
	c := *gs
	c.ResolvedIPAddresses = append([]string(nil), gs.ResolvedIPAddresses...)
	return &c
}
