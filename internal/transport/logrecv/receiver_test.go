package logrecv

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"pickupd/internal/model"
	"pickupd/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gameOverLine = `L 10/17/2026 - 20:14:03: World triggered "Game_Over" reason "Reached Win Limit"`

type fakeServers struct {
	servers []*model.GameServer
}

func (f *fakeServers) LookupByEndpoint(ip string, port int) *model.GameServer {
	for _, gs := range f.servers {
		if gs.HasEndpoint(ip, fmt.Sprint(port)) {
			return gs
		}
	}
	return nil
}

type fakeEnder struct {
	mu    sync.Mutex
	ended []string
	err   error
}

func (f *fakeEnder) MarkEndedByServer(ctx context.Context, gameServerID string) (*model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.ended = append(f.ended, gameServerID)
	return &model.Match{Number: len(f.ended), GameServerID: gameServerID, State: model.MatchEnded}, nil
}

func (f *fakeEnder) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

func TestIsGameOver(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{gameOverLine, true},
		{`World triggered "Game_Over" reason "Reached Time Limit"`, true},
		{`World triggered "Round_Win" (winner "Red")`, false},
		{`"player<2><[U:1:1]><Blue>" say "Game_Over"`, false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsGameOver(tt.line), tt.line)
	}
}

func newTestReceiver() (*Receiver, *fakeEnder) {
	servers := &fakeServers{servers: []*model.GameServer{
		{ID: "gs-1", Name: "one", Port: "27015", ResolvedIPAddresses: []string{"127.0.0.1"}},
	}}
	ender := &fakeEnder{}
	return NewReceiver("127.0.0.1:0", servers, ender), ender
}

func TestHandleLine(t *testing.T) {
	ctx := context.Background()

	t.Run("game over from a known server ends its match", func(t *testing.T) {
		r, ender := newTestReceiver()
		r.HandleLine(ctx, "127.0.0.1", 27015, gameOverLine)
		assert.Equal(t, []string{"gs-1"}, ender.calls())
	})

	t.Run("other lines are ignored", func(t *testing.T) {
		r, ender := newTestReceiver()
		r.HandleLine(ctx, "127.0.0.1", 27015, `World triggered "Round_Start"`)
		assert.Empty(t, ender.calls())
	})

	t.Run("unknown endpoint is ignored", func(t *testing.T) {
		r, ender := newTestReceiver()
		r.HandleLine(ctx, "127.0.0.1", 27016, gameOverLine)
		r.HandleLine(ctx, "10.9.9.9", 27015, gameOverLine)
		assert.Empty(t, ender.calls())
	})

	t.Run("no running match is not fatal", func(t *testing.T) {
		r, ender := newTestReceiver()
		ender.err = fmt.Errorf("%w: no active match", service.ErrNotFound)
		assert.NotPanics(t, func() { r.HandleLine(ctx, "127.0.0.1", 27015, gameOverLine) })
	})
}

func TestServe_EndsMatchFromDatagram(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()
	clientPort := client.LocalAddr().(*net.UDPAddr).Port

	servers := &fakeServers{servers: []*model.GameServer{
		{ID: "gs-7", Name: "seven", Port: fmt.Sprint(clientPort), ResolvedIPAddresses: []string{"127.0.0.1"}},
	}}
	ender := &fakeEnder{}
	r := NewReceiver("", servers, ender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.serve(ctx, listener) }()

	_, err = client.WriteTo(append([]byte("\xff\xff\xff\xffRL "), gameOverLine...), listener.LocalAddr())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(ender.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"gs-7"}, ender.calls())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestLimiterPerSource(t *testing.T) {
	r, _ := newTestReceiver()
	r.perSecond = 1
	r.burst = 2

	a := r.limiter("10.0.0.1")
	assert.True(t, a.Allow())
	assert.True(t, a.Allow())
	assert.False(t, a.Allow())

	assert.True(t, r.limiter("10.0.0.2").Allow())
	assert.Same(t, a, r.limiter("10.0.0.1"))

	r.limiters["10.0.0.2"].lastSeen = time.Now().Add(-time.Hour)
	r.pruneLimiters(10 * time.Minute)
	assert.Contains(t, r.limiters, "10.0.0.1")
	assert.NotContains(t, r.limiters, "10.0.0.2")
}
