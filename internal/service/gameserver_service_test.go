package service

import (
	"context"
	"sync"
	"testing"

	"pickupd/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) (*GameServerService, *fakeGameServerRepo, *EventBus) {
	t.Helper()
	repo := newFakeGameServerRepo()
	resolver := &fakeResolver{hosts: map[string][]string{
		"127.0.0.1":        {"127.0.0.1"},
		"tf2.example.com":  {"203.0.113.10", "203.0.113.11"},
		"tf2b.example.com": {"203.0.113.20"},
	}}
	bus := NewEventBus()
	t.Cleanup(bus.Close)
	return NewGameServerService(repo, resolver, bus), repo, bus
}

func register(t *testing.T, pool *GameServerService, name, address, port string) *model.GameServer {
	t.Helper()
	gs, err := pool.Register(context.Background(), &model.RegisterGameServerRequest{
		Name:         name,
		Address:      address,
		Port:         port,
		RconPassword: "secret",
	})
	require.NoError(t, err)
	return gs
}

func TestRegister_VoiceChannelNumbering(t *testing.T) {
	pool, _, _ := newTestPool(t)

	a := register(t, pool, "A", "127.0.0.1", "27015")
	b := register(t, pool, "B", "127.0.0.1", "27025")
	c := register(t, pool, "C", "127.0.0.1", "27035")

	assert.Equal(t, "1", a.VoiceChannelName)
	assert.Equal(t, "2", b.VoiceChannelName)
	assert.Equal(t, "3", c.VoiceChannelName)
}

func TestRegister_InitialFlags(t *testing.T) {
	pool, repo, _ := newTestPool(t)

	gs := register(t, pool, "A", "tf2.example.com", "27015")

	assert.False(t, gs.IsOnline)
	assert.True(t, gs.IsFree)
	assert.Equal(t, []string{"203.0.113.10", "203.0.113.11"}, gs.ResolvedIPAddresses)
	assert.NotNil(t, repo.stored(gs.ID))
}

func TestRegister_ResolutionFailure(t *testing.T) {
	pool, repo, _ := newTestPool(t)

	_, err := pool.Register(context.Background(), &model.RegisterGameServerRequest{
		Name: "X", Address: "unknown.invalid", Port: "27015", RconPassword: "x",
	})

	assert.ErrorIs(t, err, ErrResolution)
	assert.Empty(t, pool.List())
	all, _ := repo.GetAll(context.Background())
	assert.Empty(t, all)
}

func TestRegister_StorageFailure(t *testing.T) {
	pool, repo, _ := newTestPool(t)
	repo.createErr = errBoom

	_, err := pool.Register(context.Background(), &model.RegisterGameServerRequest{
		Name: "X", Address: "127.0.0.1", Port: "27015", RconPassword: "x",
	})

	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, pool.List())
}

func TestTake_MutualExclusion(t *testing.T) {
	pool, _, _ := newTestPool(t)
	gs := register(t, pool, "A", "127.0.0.1", "27015")

	const callers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		notFree int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Take(context.Background(), gs.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
			} else if assert.ErrorIs(t, err, ErrServerNotFree) {
				notFree++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, callers-1, notFree)
}

func TestRelease_Idempotent(t *testing.T) {
	pool, repo, bus := newTestPool(t)
	rec := recordEvents(bus, model.EventServerFreeChanged)
	gs := register(t, pool, "A", "127.0.0.1", "27015")

	_, err := pool.Take(context.Background(), gs.ID)
	require.NoError(t, err)
	assert.False(t, repo.stored(gs.ID).IsFree)

	for i := 0; i < 2; i++ {
		released, err := pool.Release(context.Background(), gs.ID)
		require.NoError(t, err)
		assert.True(t, released.IsFree)
	}
	assert.True(t, repo.stored(gs.ID).IsFree)
	// one event for take, one for the first release
	assert.Equal(t, 2, rec.count(model.EventServerFreeChanged))
}

func TestTakeRelease_UnknownServer(t *testing.T) {
	pool, _, _ := newTestPool(t)

	_, err := pool.Take(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = pool.Release(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, pool.SetOnline(context.Background(), "nope", true), ErrNotFound)
}

func TestTake_StorageFailureLeavesServerFree(t *testing.T) {
	pool, repo, _ := newTestPool(t)
	gs := register(t, pool, "A", "127.0.0.1", "27015")
	repo.setFlagErr = errBoom

	_, err := pool.Take(context.Background(), gs.ID)
	assert.ErrorIs(t, err, ErrStorage)

	got, err := pool.Get(gs.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFree)
}

func TestFlags_Independent(t *testing.T) {
	pool, _, _ := newTestPool(t)
	gs := register(t, pool, "A", "127.0.0.1", "27015")
	ctx := context.Background()

	require.NoError(t, pool.SetOnline(ctx, gs.ID, true))
	_, err := pool.Take(ctx, gs.ID)
	require.NoError(t, err)

	require.NoError(t, pool.SetOnline(ctx, gs.ID, false))
	got, _ := pool.Get(gs.ID)
	assert.False(t, got.IsOnline)
	assert.False(t, got.IsFree, "going offline must not free a taken server")

	_, err = pool.Release(ctx, gs.ID)
	require.NoError(t, err)
	got, _ = pool.Get(gs.ID)
	assert.False(t, got.IsOnline, "release must not bring a server online")
	assert.True(t, got.IsFree)
}

func TestFindFree(t *testing.T) {
	pool, _, _ := newTestPool(t)
	ctx := context.Background()

	assert.Nil(t, pool.FindFree())

	a := register(t, pool, "A", "127.0.0.1", "27015")
	b := register(t, pool, "B", "127.0.0.1", "27025")
	assert.Nil(t, pool.FindFree(), "offline servers are not allocatable")

	require.NoError(t, pool.SetOnline(ctx, a.ID, true))
	require.NoError(t, pool.SetOnline(ctx, b.ID, true))
	_, err := pool.Take(ctx, a.ID)
	require.NoError(t, err)

	free := pool.FindFree()
	require.NotNil(t, free)
	assert.Equal(t, b.ID, free.ID)

	// FindFree never allocates
	again := pool.FindFree()
	require.NotNil(t, again)
	assert.Equal(t, b.ID, again.ID)
}

func TestLookupByEndpoint(t *testing.T) {
	pool, _, _ := newTestPool(t)
	local := register(t, pool, "local", "127.0.0.1", "27015")
	remote := register(t, pool, "remote", "tf2.example.com", "27015")

	tests := []struct {
		name string
		ip   string
		port int
		want string
	}{
		{"local", "127.0.0.1", 27015, local.ID},
		{"second resolved address", "203.0.113.11", 27015, remote.ID},
		{"wrong port", "127.0.0.1", 27016, ""},
		{"unknown ip", "198.51.100.1", 27015, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := pool.LookupByEndpoint(tt.ip, tt.port)
			if tt.want == "" {
				assert.Nil(t, gs)
				return
			}
			require.NotNil(t, gs)
			assert.Equal(t, tt.want, gs.ID)
		})
	}
}

func TestRemove(t *testing.T) {
	zero := int64(0)

	tests := []struct {
		name    string
		id      func(gs *model.GameServer) string
		setup   func(repo *fakeGameServerRepo)
		wantErr error
		kept    bool
	}{
		{
			name: "removes registered server",
			id:   func(gs *model.GameServer) string { return gs.ID },
		},
		{
			name:    "unknown id",
			id:      func(*model.GameServer) string { return "nope" },
			wantErr: ErrNotFound,
			kept:    true,
		},
		{
			name:    "nothing deleted in storage",
			id:      func(gs *model.GameServer) string { return gs.ID },
			setup:   func(repo *fakeGameServerRepo) { repo.deleteResult = &zero },
			wantErr: ErrRemoval,
			kept:    true,
		},
		{
			name:    "storage failure",
			id:      func(gs *model.GameServer) string { return gs.ID },
			setup:   func(repo *fakeGameServerRepo) { repo.deleteErr = errBoom },
			wantErr: ErrStorage,
			kept:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, repo, _ := newTestPool(t)
			gs := register(t, pool, "A", "127.0.0.1", "27015")
			if tt.setup != nil {
				tt.setup(repo)
			}

			err := pool.Remove(context.Background(), tt.id(gs))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			_, getErr := pool.Get(gs.ID)
			assert.Equal(t, tt.kept, getErr == nil)
		})
	}
}

func TestLoad(t *testing.T) {
	pool, repo, _ := newTestPool(t)
	register(t, pool, "A", "127.0.0.1", "27015")
	register(t, pool, "B", "127.0.0.1", "27025")

	fresh := NewGameServerService(repo, &fakeResolver{hosts: map[string][]string{"127.0.0.1": {"127.0.0.1"}}}, nil)
	require.NoError(t, fresh.Load(context.Background()))

	list := fresh.List()
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Name)
	assert.Equal(t, "B", list[1].Name)

	// numbering continues from what storage already holds
	c := register(t, fresh, "C", "127.0.0.1", "27035")
	assert.Equal(t, "3", c.VoiceChannelName)
}
