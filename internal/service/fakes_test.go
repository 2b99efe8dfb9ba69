package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"pickupd/internal/model"
)

var errBoom = errors.New("boom")

type fakeGameServerRepo struct {
	mu      sync.Mutex
	servers map[string]*model.GameServer
	nextID  int

	createErr    error
	setFlagErr   error
	deleteErr    error
	deleteResult *int64
}

func newFakeGameServerRepo() *fakeGameServerRepo {
	return &fakeGameServerRepo{servers: make(map[string]*model.GameServer)}
}

func (r *fakeGameServerRepo) Create(ctx context.Context, server *model.GameServer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	server.ID = fmt.Sprintf("gs-%d", r.nextID)
	c := *server
	r.servers[server.ID] = &c
	return nil
}

func (r *fakeGameServerRepo) GetAll(ctx context.Context) ([]*model.GameServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.GameServer, 0, len(r.servers))
	for _, gs := range r.servers {
		c := *gs
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeGameServerRepo) SetFree(ctx context.Context, id string, free bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setFlagErr != nil {
		return r.setFlagErr
	}
	if gs, ok := r.servers[id]; ok {
		gs.IsFree = free
	}
	return nil
}

func (r *fakeGameServerRepo) SetOnline(ctx context.Context, id string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setFlagErr != nil {
		return r.setFlagErr
	}
	if gs, ok := r.servers[id]; ok {
		gs.IsOnline = online
	}
	return nil
}

func (r *fakeGameServerRepo) Delete(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	if r.deleteResult != nil {
		return *r.deleteResult, nil
	}
	if _, ok := r.servers[id]; !ok {
		return 0, nil
	}
	delete(r.servers, id)
	return 1, nil
}

func (r *fakeGameServerRepo) stored(id string) *model.GameServer {
	r.mu.Lock()
	defer r.mu.Unlock()
	gs, ok := r.servers[id]
	if !ok {
		return nil
	}
	c := *gs
	return &c
}

type fakeMatchRepo struct {
	mu      sync.Mutex
	matches []*model.Match
}

func (r *fakeMatchRepo) Create(ctx context.Context, match *model.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	match.ID = fmt.Sprintf("match-%d", len(r.matches)+1)
	r.matches = append(r.matches, copyMatch(match))
	return nil
}

func (r *fakeMatchRepo) Update(ctx context.Context, match *model.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.matches {
		if m.ID == match.ID {
			r.matches[i] = copyMatch(match)
			return nil
		}
	}
	return errors.New("no such match")
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id string) (*model.Match, error) {
	return r.find(func(m *model.Match) bool { return m.ID == id }), nil
}

func (r *fakeMatchRepo) GetByNumber(ctx context.Context, number int) (*model.Match, error) {
	return r.find(func(m *model.Match) bool { return m.Number == number }), nil
}

func (r *fakeMatchRepo) GetActiveByServer(ctx context.Context, gameServerID string) (*model.Match, error) {
	return r.find(func(m *model.Match) bool { return m.GameServerID == gameServerID && m.Active() }), nil
}

func (r *fakeMatchRepo) LastNumber(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	last := 0
	for _, m := range r.matches {
		if m.Number > last {
			last = m.Number
		}
	}
	return last, nil
}

func (r *fakeMatchRepo) List(ctx context.Context, ascending bool, limit, offset int64) ([]*model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*model.Match, 0, len(r.matches))
	for _, m := range r.matches {
		all = append(all, copyMatch(m))
	}
	sort.Slice(all, func(i, j int) bool {
		if ascending {
			return all[i].Number < all[j].Number
		}
		return all[i].Number > all[j].Number
	})
	if offset >= int64(len(all)) {
		return nil, nil
	}
	all = all[offset:]
	if limit < int64(len(all)) {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeMatchRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.matches)), nil
}

func (r *fakeMatchRepo) find(pred func(*model.Match) bool) *model.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.matches {
		if pred(m) {
			return copyMatch(m)
		}
	}
	return nil
}

func (r *fakeMatchRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

func copyMatch(m *model.Match) *model.Match {
	c := *m
	c.Slots = append([]model.MatchSlot(nil), m.Slots...)
	return &c
}

type fakePlayerRepo struct {
	players map[string]*model.Player
}

func newFakePlayerRepo(players ...*model.Player) *fakePlayerRepo {
	r := &fakePlayerRepo{players: make(map[string]*model.Player)}
	for _, p := range players {
		r.players[p.ID] = p
	}
	return r
}

func (r *fakePlayerRepo) GetByID(ctx context.Context, id string) (*model.Player, error) {
	return r.players[id], nil
}

func (r *fakePlayerRepo) GetMany(ctx context.Context, ids []string) (map[string]*model.Player, error) {
	out := make(map[string]*model.Player)
	for _, id := range ids {
		if p, ok := r.players[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeMapVoteRepo struct {
	mu      sync.Mutex
	records []*model.MapVoteRecord
}

func (r *fakeMapVoteRepo) Create(ctx context.Context, record *model.MapVoteRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeMapVoteRepo) Recent(ctx context.Context, limit int64) ([]*model.MapVoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.MapVoteRecord, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}

func (r *fakeMapVoteRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type fakeResolver struct {
	hosts map[string][]string
}

func (r *fakeResolver) Resolve(ctx context.Context, host string) ([]string, error) {
	ips, ok := r.hosts[host]
	if !ok {
		return nil, fmt.Errorf("no such host %s", host)
	}
	return ips, nil
}

type configureCall struct {
	ServerID string
	Map      string
	Roster   []model.RosterEntry
}

type fakeControlPlane struct {
	mu         sync.Mutex
	probeErr   map[string]error
	probes     int
	failLaunch int // number of ConfigureAndStart calls to fail before succeeding
	block      chan struct{}
	calls      []configureCall
}

func newFakeControlPlane() *fakeControlPlane {
	return &fakeControlPlane{probeErr: make(map[string]error)}
}

func (c *fakeControlPlane) Probe(ctx context.Context, server *model.GameServer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes++
	return c.probeErr[server.ID]
}

func (c *fakeControlPlane) ConfigureAndStart(ctx context.Context, server *model.GameServer, mapName string, roster []model.RosterEntry) error {
	c.mu.Lock()
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, configureCall{ServerID: server.ID, Map: mapName, Roster: roster})
	if c.failLaunch > 0 {
		c.failLaunch--
		return errors.New("rcon timeout")
	}
	return nil
}

func (c *fakeControlPlane) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeControlPlane) configured() []configureCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]configureCall(nil), c.calls...)
}

func (c *fakeControlPlane) setProbeErr(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeErr[id] = err
}

type fakePresenceCache struct {
	mu     sync.Mutex
	online map[string]bool
}

func newFakePresenceCache() *fakePresenceCache {
	return &fakePresenceCache{online: make(map[string]bool)}
}

func (c *fakePresenceCache) Add(ctx context.Context, playerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online[playerID] = true
	return nil
}

func (c *fakePresenceCache) Remove(ctx context.Context, playerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.online, playerID)
	return nil
}

func (c *fakePresenceCache) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = make(map[string]bool)
	return nil
}

func (c *fakePresenceCache) has(playerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[playerID]
}

type fakeQueueCache struct {
	mu     sync.Mutex
	state  *model.QueueState
	writes int

	// when set, the first write waits for it to be closed
	hold chan struct{}
}

func (c *fakeQueueCache) SetState(ctx context.Context, state *model.QueueState) error {
	c.mu.Lock()
	c.writes++
	first := c.writes == 1
	c.mu.Unlock()

	if first && c.hold != nil {
		select {
		case <-c.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	return nil
}

func (c *fakeQueueCache) GetState(ctx context.Context) (*model.QueueState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, nil
}

// eventRecorder collects bus events of the given types
type eventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func recordEvents(bus *EventBus, types ...model.EventType) *eventRecorder {
	r := &eventRecorder{}
	bus.Subscribe(func(evt model.Event) {
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.mu.Unlock()
	}, types...)
	return r
}

func (r *eventRecorder) all() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

func (r *eventRecorder) count(t model.EventType) int {
	n := 0
	for _, evt := range r.all() {
		if evt.Type == t {
			n++
		}
	}
	return n
}
