package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"damas-server/internal/draughts"
)

// ============================================================================
// TEST SERVER AND CLIENT
// ============================================================================

func setupTestServer(t *testing.T, balances map[string]int64) (*Server, *httptest.Server) {
	t.Helper()

	s := &Server{
		connectionManager: NewConnectionManager(),
		sessionManager:    NewSessionManager(),
		rateLimiter:       NewRateLimiter(200, time.Second),
	}
	s.roomManager = NewRoomManager(NewMemoryLedger(balances), NewMemoryRecorder(), &serverNotifier{server: s})

	ts := httptest.NewServer(s.RegisterRoutes())
	t.Cleanup(ts.Close)
	return s, ts
}

type wsClient struct {
	t    *testing.T
	ctx  context.Context
	conn *websocket.Conn
}

func dialWS(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/websocket"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	return &wsClient{t: t, ctx: ctx, conn: conn}
}

func (c *wsClient) send(msgType string, payload interface{}) {
	c.t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	data, err := json.Marshal(ClientMessage{Type: msgType, Payload: raw})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Write(c.ctx, websocket.MessageText, data))
}

type serverEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil skips interleaved broadcasts (lobby and timer updates arrive at
// any time) until a message of the wanted type shows up.
func (c *wsClient) readUntil(msgType string) serverEnvelope {
	c.t.Helper()

	for {
		_, data, err := c.conn.Read(c.ctx)
		require.NoError(c.t, err, "waiting for %q", msgType)

		var env serverEnvelope
		require.NoError(c.t, json.Unmarshal(data, &env))
		if env.Type == msgType {
			return env
		}
		if env.Type == "error" {
			var em ErrorMessage
			_ = json.Unmarshal(env.Payload, &em)
			c.t.Fatalf("got error %q while waiting for %q", em.Message, msgType)
		}
	}
}

func decodeInto(t *testing.T, env serverEnvelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Payload, out))
}

// startGame walks two clients through the full handshake and returns the
// client playing light, the one playing dark, and the room code.
func startGame(t *testing.T, ts *httptest.Server) (light, dark *wsClient, roomCode string) {
	t.Helper()

	creator := dialWS(t, ts)
	joiner := dialWS(t, ts)

	creator.send("create_room", CreateRoomRequest{Username: "alice", BoardSize: 8, TimerMode: "per_move", TimerSeconds: 60})
	var created CreateRoomResponse
	decodeInto(t, creator.readUntil("room_created"), &created)

	joiner.send("join_room", JoinRoomRequest{RoomCode: created.RoomCode, Username: "bob"})
	joiner.readUntil("bet_confirmation_request")
	creator.readUntil("opponent_joined")

	joiner.send("accept_bet", struct{}{})

	var creatorStart, joinerStart GameStartedNotification
	decodeInto(t, creator.readUntil("game_started"), &creatorStart)
	decodeInto(t, joiner.readUntil("game_started"), &joinerStart)

	require.NotEqual(t, creatorStart.Color, joinerStart.Color)
	if creatorStart.Color == draughts.Light {
		return creator, joiner, created.RoomCode
	}
	return joiner, creator, created.RoomCode
}

// ============================================================================
// HTTP SURFACE
// ============================================================================

func TestHealthEndpoint(t *testing.T) {
	_, ts := setupTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "up", health["status"])
	assert.Equal(t, "not configured", health["database"])
}

// ============================================================================
// WEBSOCKET FLOWS
// ============================================================================

func TestConnectionGreetedWithLobby(t *testing.T) {
	_, ts := setupTestServer(t, nil)

	creator := dialWS(t, ts)
	creator.send("create_room", CreateRoomRequest{Username: "alice", Bet: 10})
	creator.readUntil("room_created")

	observer := dialWS(t, ts)
	var lobby LobbyListMessage
	decodeInto(t, observer.readUntil("lobby_update"), &lobby)

	require.Len(t, lobby.Rooms, 1)
	assert.Equal(t, "alice", lobby.Rooms[0].Creator)
	assert.EqualValues(t, 10, lobby.Rooms[0].Bet)
}

func TestPingPong(t *testing.T) {
	_, ts := setupTestServer(t, nil)

	c := dialWS(t, ts)
	c.send("ping", struct{}{})
	c.readUntil("pong")
}

func TestUnknownMessageType(t *testing.T) {
	_, ts := setupTestServer(t, nil)

	c := dialWS(t, ts)
	c.send("teleport", struct{}{})

	var em ErrorMessage
	decodeInto(t, c.readUntilError(t), &em)
	assert.Contains(t, em.Message, "UNKNOWN_TYPE")
}

func TestFullGameHandshakeAndMove(t *testing.T) {
	_, ts := setupTestServer(t, nil)
	light, dark, _ := startGame(t, ts)

	light.send("move", MoveRequest{
		From: draughts.Square{Row: 2, Col: 1},
		To:   draughts.Square{Row: 3, Col: 2},
	})

	var res MoveResultResponse
	decodeInto(t, light.readUntil("move_result"), &res)
	assert.True(t, res.Success)
	assert.False(t, res.MayContinue)

	var state GameStateMessage
	decodeInto(t, dark.readUntil("game_state"), &state)
	require.NotNil(t, state.State)
	assert.Equal(t, draughts.Dark, state.State.Turn)
}

func TestIllegalMoveGetsRejection(t *testing.T) {
	_, ts := setupTestServer(t, nil)
	light, _, _ := startGame(t, ts)

	light.send("move", MoveRequest{
		From: draughts.Square{Row: 2, Col: 1},
		To:   draughts.Square{Row: 5, Col: 4},
	})

	var res MoveResultResponse
	decodeInto(t, light.readUntil("invalid_move"), &res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestValidMovesQuery(t *testing.T) {
	_, ts := setupTestServer(t, nil)
	light, _, _ := startGame(t, ts)

	light.send("valid_moves", ValidMovesRequest{Square: draughts.Square{Row: 2, Col: 1}})

	var res ValidMovesResponse
	decodeInto(t, light.readUntil("valid_moves"), &res)
	assert.Len(t, res.Destinations, 2)
}

func TestResignDeliversGameOver(t *testing.T) {
	_, ts := setupTestServer(t, nil)
	light, dark, _ := startGame(t, ts)

	light.send("resign", struct{}{})

	var over GameOverNotification
	decodeInto(t, dark.readUntil("game_over"), &over)
	assert.Equal(t, "resignation", over.Reason)
	assert.False(t, over.Draw)
	assert.NotEmpty(t, over.Winner)

	decodeInto(t, light.readUntil("game_over"), &over)
	assert.Equal(t, "resignation", over.Reason)
}

func TestDrawOfferFlow(t *testing.T) {
	_, ts := setupTestServer(t, nil)
	light, dark, _ := startGame(t, ts)

	light.send("offer_draw", struct{}{})

	var offer DrawOfferNotification
	decodeInto(t, dark.readUntil("draw_offered"), &offer)
	assert.NotEmpty(t, offer.From)

	dark.send("accept_draw", struct{}{})

	var over GameOverNotification
	decodeInto(t, light.readUntil("game_over"), &over)
	assert.True(t, over.Draw)
	assert.Equal(t, "draw agreed", over.Reason)
}

func TestRequestSyncReturnsSnapshot(t *testing.T) {
	_, ts := setupTestServer(t, nil)
	light, _, roomCode := startGame(t, ts)

	light.send("request_sync", struct{}{})

	var state GameStateMessage
	decodeInto(t, light.readUntil("game_state"), &state)
	assert.Equal(t, roomCode, state.RoomCode)
	require.NotNil(t, state.State)
	assert.Equal(t, 8, state.State.Size)
}

func TestSpectateReceivesSnapshot(t *testing.T) {
	_, ts := setupTestServer(t, nil)
	_, _, roomCode := startGame(t, ts)

	spectator := dialWS(t, ts)
	spectator.send("spectate", SpectateRequest{RoomCode: roomCode})

	var state GameStateMessage
	decodeInto(t, spectator.readUntil("game_state"), &state)
	assert.Equal(t, roomCode, state.RoomCode)
}

func TestReconnectRestoresSession(t *testing.T) {
	s, ts := setupTestServer(t, nil)

	creator := dialWS(t, ts)
	joiner := dialWS(t, ts)

	creator.send("create_room", CreateRoomRequest{Username: "alice"})
	var created CreateRoomResponse
	decodeInto(t, creator.readUntil("room_created"), &created)

	joiner.send("join_room", JoinRoomRequest{RoomCode: created.RoomCode, Username: "bob"})
	var joined JoinRoomResponse
	decodeInto(t, joiner.readUntil("room_joined"), &joined)
	joiner.readUntil("bet_confirmation_request")
	joiner.send("accept_bet", struct{}{})
	joiner.readUntil("game_started")
	creator.readUntil("game_started")

	// Drop the challenger and wait for the server to notice.
	joiner.conn.Close(websocket.StatusGoingAway, "network change")
	require.Eventually(t, func() bool {
		room, err := s.roomManager.getRoom(created.RoomCode)
		if err != nil {
			return false
		}
		room.mu.Lock()
		defer room.mu.Unlock()
		return !room.Seats[1].Connected
	}, 2*time.Second, 10*time.Millisecond)

	returning := dialWS(t, ts)
	returning.send("reconnect", ReconnectRequest{Token: joined.Token})

	var resp ReconnectResponse
	decodeInto(t, returning.readUntil("reconnected"), &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, created.RoomCode, resp.RoomCode)

	var state GameStateMessage
	decodeInto(t, returning.readUntil("game_state"), &state)
	assert.Equal(t, created.RoomCode, state.RoomCode)

	creator.readUntil("opponent_resumed")
}

func TestMoveWithoutRoomIsRejected(t *testing.T) {
	_, ts := setupTestServer(t, nil)

	c := dialWS(t, ts)
	c.send("move", MoveRequest{From: draughts.Square{Row: 2, Col: 1}, To: draughts.Square{Row: 3, Col: 2}})

	env := c.readUntilError(t)
	var em ErrorMessage
	decodeInto(t, env, &em)
	assert.Contains(t, em.Message, "NOT_IN_ROOM")
}

// readUntilError reads until an error envelope arrives, skipping broadcasts.
func (c *wsClient) readUntilError(t *testing.T) serverEnvelope {
	t.Helper()
	for {
		_, data, err := c.conn.Read(c.ctx)
		require.NoError(t, err)
		var env serverEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == "error" {
			return env
		}
	}
}
