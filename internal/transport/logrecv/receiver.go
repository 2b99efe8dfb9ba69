package logrecv

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"pickupd/internal/model"
	"pickupd/internal/service"

	"golang.org/x/time/rate"
)

const gameOverMarker = `World triggered "Game_Over"`

var oobPrefix = []byte("\xff\xff\xff\xff")

// ServerLookup maps a datagram's source to a registered server
type ServerLookup interface {
	LookupByEndpoint(ip string, port int) *model.GameServer
}

// MatchEnder ends the running match of a server
type MatchEnder interface {
	MarkEndedByServer(ctx context.Context, gameServerID string) (*model.Match, error)
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Receiver listens for game servers' log lines forwarded over UDP
type Receiver struct {
	addr    string
	servers ServerLookup
	matches MatchEnder

	// log lines allowed per second per source ip
	perSecond rate.Limit
	burst     int

	rlMutex  sync.Mutex
	limiters map[string]*clientLimiter
}

// NewReceiver creates a receiver bound to addr once Serve is called
func NewReceiver(addr string, servers ServerLookup, matches MatchEnder) *Receiver {
	return &Receiver{
		addr:      addr,
		servers:   servers,
		matches:   matches,
		perSecond: 50,
		burst:     200,
		limiters:  make(map[string]*clientLimiter),
	}
}

// Serve reads datagrams until ctx is cancelled
func (r *Receiver) Serve(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", r.addr)
	if err != nil {
		return err
	}
	log.Printf("Log receiver listening on %s", conn.LocalAddr())
	return r.serve(ctx, conn)
}

func (r *Receiver) serve(ctx context.Context, conn net.PacketConn) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	cleanup := time.NewTicker(5 * time.Minute)
	defer cleanup.Stop()

	buffer := make([]byte, 4096)
	for {
		n, addr, err := conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("Log receiver read error: %v", err)
			continue
		}

		select {
		case <-cleanup.C:
			r.pruneLimiters(10 * time.Minute)
		default:
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		ip := udpAddr.IP.String()
		if !r.limiter(ip).Allow() {
			continue
		}

		line := string(bytes.TrimPrefix(buffer[:n], oobPrefix))
		r.HandleLine(ctx, ip, udpAddr.Port, line)
	}
}

// HandleLine processes one log line from ip:port
func (r *Receiver) HandleLine(ctx context.Context, ip string, port int, line string) {
	if !IsGameOver(line) {
		return
	}

	gs := r.servers.LookupByEndpoint(ip, port)
	if gs == nil {
		log.Printf("Game over from unknown endpoint %s:%d", ip, port)
		return
	}

	match, err := r.matches.MarkEndedByServer(ctx, gs.ID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			log.Printf("Game over on %s without a running match", gs.Name)
			return
		}
		log.Printf("Failed to end match on %s: %v", gs.Name, err)
		return
	}
	log.Printf("Match #%d on %s finished", match.Number, gs.Name)
}

// IsGameOver reports whether a log line marks the end of a match
func IsGameOver(line string) bool {
	return strings.Contains(line, gameOverMarker)
}

func (r *Receiver) limiter(ip string) *rate.Limiter {
	r.rlMutex.Lock()
	defer r.rlMutex.Unlock()

	entry, exists := r.limiters[ip]
	if !exists {
		limiter := rate.NewLimiter(r.perSecond, r.burst)
		r.limiters[ip] = &clientLimiter{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (r *Receiver) pruneLimiters(idle time.Duration) {
	r.rlMutex.Lock()
	defer r.rlMutex.Unlock()

	for ip, entry := range r.limiters {
		if time.Since(entry.lastSeen) > idle {
			delete(r.limiters, ip)
		}
	}
}
