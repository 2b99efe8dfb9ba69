package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"pickupd/internal/model"

	"github.com/leighmacdonald/steamid/v4/steamid"
)

// ControlPlane is the capability used to talk to a game server process
type ControlPlane interface {
	// Probe returns nil when the server answers in time
	Probe(ctx context.Context, server *model.GameServer) error
	ConfigureAndStart(ctx context.Context, server *model.GameServer, mapName string, roster []model.RosterEntry) error
}

var oobPrefix = []byte("\xff\xff\xff\xff")

// UDPControlPlane speaks the connectionless out-of-band console protocol:
// "getstatus" for probes and "rcon <password> <command>" for configuration.
type UDPControlPlane struct {
	timeout time.Duration
}

// NewUDPControlPlane creates a control plane with a per-exchange timeout
func NewUDPControlPlane(timeout time.Duration) *UDPControlPlane {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &UDPControlPlane{timeout: timeout}
}

func (c *UDPControlPlane) Probe(ctx context.Context, server *model.GameServer) error {
	reply, err := c.exchange(ctx, server, "getstatus\n")
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(reply, []byte("statusResponse")) {
		return fmt.Errorf("unexpected status reply from %s", server.Address)
	}
	return nil
}

func (c *UDPControlPlane) ConfigureAndStart(ctx context.Context, server *model.GameServer, mapName string, roster []model.RosterEntry) error {
	for _, cmd := range launchCommands(mapName, roster) {
		reply, err := c.exchange(ctx, server, fmt.Sprintf("rcon %s %s\n", server.RconPassword, cmd))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrControlPlane, cmd, err)
		}
		if bytes.Contains(bytes.ToLower(reply), []byte("bad rconpassword")) {
			return fmt.Errorf("%w: bad rcon password for %s", ErrControlPlane, server.Name)
		}
	}
	return nil
}

// launchCommands builds the console commands that prepare a match. Seats are
// reserved by Steam3 id; players without a valid SteamID get no reservation.
func launchCommands(mapName string, roster []model.RosterEntry) []string {
	cmds := []string{"kickall", "sv_allowupload 0"}
	for _, p := range roster {
		sid := steamid.New(p.SteamID)
		if !sid.Valid() {
			log.Printf("Player %s has no valid SteamID, not reserving a %s seat", p.PlayerID, p.GameClass)
			continue
		}
		cmds = append(cmds, fmt.Sprintf("pickup_reserve %s %s", sid.Steam3(), p.GameClass))
	}
	return append(cmds, "changelevel "+mapName)
}

func (c *UDPControlPlane) exchange(ctx context.Context, server *model.GameServer, payload string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(server.Address, server.Port))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline for %s: %w", server.Address, err)
	}

	if _, err := conn.Write(append(append([]byte{}, oobPrefix...), payload...)); err != nil {
		return nil, err
	}

	buffer := make([]byte, 4096)
	n, err := conn.Read(buffer)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("empty reply from %s", server.Address)
	}
	reply := bytes.TrimPrefix(buffer[:n], oobPrefix)
	return []byte(strings.TrimLeft(string(reply), "\x00")), nil
}
