package rcon

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const playersOutput = "Players on server:\n" +
	"[#] [IP Address]:[Port] [Ping] [GUID] [Name]\n" +
	"--------------------------------------------------\n" +
	"0   10.0.0.5:2304    47   0123456789abcdef0123456789abcdef(OK) Survivor\n" +
	"3   10.0.0.9:2304    62   fedcba9876543210fedcba9876543210(OK) Bambi Two (Lobby)\n" +
	"(2 players in total)"

// fakeServer is a minimal BattlEye RCon endpoint.
type fakeServer struct {
	t        *testing.T
	conn     net.PacketConn
	password string
	// respond returns the response packets for a command.
	respond func(seq byte, cmd string) [][]byte

	mu       sync.Mutex
	commands []string
	acks     []byte
}

func newFakeServer(t *testing.T, password string) *fakeServer {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{t: t, conn: conn, password: password}
	s.respond = func(seq byte, cmd string) [][]byte {
		if cmd == "players" {
			return [][]byte{encode(packetCommand, append([]byte{seq}, playersOutput...))}
		}
		return [][]byte{encode(packetCommand, []byte{seq})}
	}
	t.Cleanup(func() { _ = conn.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *fakeServer) serve() {
	buf := make([]byte, 4096)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		typ, payload, err := decode(buf[:n])
		if err != nil {
			continue
		}
		switch typ {
		case packetLogin:
			ok := byte(0x00)
			if string(payload) == s.password {
				ok = 0x01
			}
			_, _ = s.conn.WriteTo(encode(packetLogin, []byte{ok}), addr)
		case packetCommand:
			seq, cmd := payload[0], string(payload[1:])
			s.mu.Lock()
			s.commands = append(s.commands, cmd)
			s.mu.Unlock()
			for _, p := range s.respond(seq, cmd) {
				_, _ = s.conn.WriteTo(p, addr)
			}
		case packetMessage:
			s.mu.Lock()
			s.acks = append(s.acks, payload[0])
			s.mu.Unlock()
		}
	}
}

func (s *fakeServer) gotCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *fakeServer) gotAcks() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.acks...)
}

func newTestClient(port int, password string) *Client {
	return New(zerolog.New(io.Discard), models.RCONConfig{
		Host:       "127.0.0.1",
		Port:       port,
		Password:   password,
		Timeout:    time.Second,
		KickReason: "Server restart",
	})
}

func TestEncodeDecode(t *testing.T) {
	packet := encode(packetCommand, []byte{0x07, 'h', 'i'})

	assert.Equal(t, []byte{'B', 'E'}, packet[:2])
	assert.Equal(t, byte(0xFF), packet[6])

	typ, payload, err := decode(packet)
	require.NoError(t, err)
	assert.Equal(t, packetCommand, typ)
	assert.Equal(t, []byte{0x07, 'h', 'i'}, payload)

	corrupted := append([]byte{}, packet...)
	corrupted[len(corrupted)-1] = 'o'
	_, _, err = decode(corrupted)
	assert.Error(t, err)

	_, _, err = decode([]byte("BE"))
	assert.ErrorIs(t, err, errMalformed)
}

func TestGlobal(t *testing.T) {
	server := newFakeServer(t, "secret")
	client := newTestClient(server.port(), "secret")

	err := client.Global(context.Background(), "Server restarts in 5 minutes")

	require.NoError(t, err)
	assert.Equal(t, []string{"say -1 Server restarts in 5 minutes"}, server.gotCommands())
}

func TestLogin_WrongPassword(t *testing.T) {
	server := newFakeServer(t, "secret")
	client := newTestClient(server.port(), "wrong")

	err := client.Lock(context.Background())

	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Empty(t, server.gotCommands())
}

func TestLockUnlock(t *testing.T) {
	server := newFakeServer(t, "secret")
	client := newTestClient(server.port(), "secret")

	require.NoError(t, client.Lock(context.Background()))
	require.NoError(t, client.Unlock(context.Background()))

	assert.Equal(t, []string{"#lock", "#unlock"}, server.gotCommands())
}

func TestPlayers(t *testing.T) {
	server := newFakeServer(t, "secret")
	client := newTestClient(server.port(), "secret")

	players, err := client.Players(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []models.Player{
		{ID: 0, Name: "Survivor", IP: "10.0.0.5"},
		{ID: 3, Name: "Bambi Two", IP: "10.0.0.9"},
	}, players)
}

func TestKickAll(t *testing.T) {
	server := newFakeServer(t, "secret")
	client := newTestClient(server.port(), "secret")

	require.NoError(t, client.KickAll(context.Background()))

	assert.Equal(t, []string{"players", "kick 0 Server restart", "kick 3 Server restart"}, server.gotCommands())
}

func TestCommand_MultipartAndServerMessages(t *testing.T) {
	server := newFakeServer(t, "secret")
	server.respond = func(seq byte, _ string) [][]byte {
		part := func(index byte, data string) []byte {
			return encode(packetCommand, append([]byte{seq, 0x00, 2, index}, data...))
		}
		return [][]byte{
			encode(packetMessage, append([]byte{0x09}, "Player #1 connected"...)),
			part(1, "10.0.0.5:2304 47 abc(OK) Survivor\n"),
			[]byte("garbage"),
			part(0, "Players on server:\n0   "),
		}
	}
	client := newTestClient(server.port(), "secret")

	players, err := client.Players(context.Background())

	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "Survivor", players[0].Name)
	assert.Eventually(t, func() bool {
		return len(server.gotAcks()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte{0x09}, server.gotAcks())
}

func TestCommand_Timeout(t *testing.T) {
	server := newFakeServer(t, "secret")
	server.respond = func(byte, string) [][]byte { return nil }
	client := New(zerolog.New(io.Discard), models.RCONConfig{
		Host:     "127.0.0.1",
		Port:     server.port(),
		Password: "secret",
		Timeout:  100 * time.Millisecond,
	})

	err := client.Lock(context.Background())

	assert.Error(t, err)
}

func TestParsePlayers_Empty(t *testing.T) {
	out := "Players on server:\n[#] [IP Address]:[Port] [Ping] [GUID] [Name]\n" +
		"--------------------------------------------------\n(0 players in total)"

	assert.Empty(t, parsePlayers(out))
}

func TestDial_Failure(t *testing.T) {
	client := NewWithDialer(zerolog.New(io.Discard), models.RCONConfig{Host: "127.0.0.1", Port: 1}, failingDialer{})

	err := client.Global(context.Background(), "hi")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to rcon 127.0.0.1:"+strconv.Itoa(1))
}

type failingDialer struct{}

func (failingDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	return nil, &net.OpError{Op: "dial", Net: "udp", Err: io.ErrClosedPipe}
}
