package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/websocket", s.websocketHandler)

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "up", "database": "not configured"}
	if s.db != nil {
		health = s.db.Health()
	}

	resp, err := json.Marshal(health)
	if err != nil {
		http.Error(w, "Failed to marshal health check response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		logrus.Errorf("Failed to write response: %v", err)
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: restrict to the deployed frontend origin
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.New().String()
	logrus.Infof("New connection: %s", connectionID)
	s.connectionManager.AddConnection(connectionID, socket)
	defer func() {
		token := s.connectionManager.GetTokenByConnection(connectionID)
		s.connectionManager.RemoveConnection(connectionID)
		s.rateLimiter.Forget(connectionID)
		logrus.Infof("Connection closed: %s", connectionID)

		if token != "" {
			s.roomManager.HandleDisconnect(token)
		}
	}()

	// Greet with the current lobby roster.
	s.connectionManager.SendToConnection(connectionID, ServerMessage{
		Type:    "lobby_update",
		Payload: LobbyListMessage{Rooms: s.roomManager.ListRooms()},
	})

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			logrus.Debugf("Connection %s read error: %v", connectionID, err)
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if !s.rateLimiter.Allow(connectionID) {
			s.sendError(connectionID, "RATE_LIMITED: Too many messages, slow down")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(connectionID, "INVALID_JSON: Could not parse message")
			continue
		}

		logrus.Debugf("Message type '%s' from %s", msg.Type, connectionID)

		switch msg.Type {
		case "ping":
			s.send(connectionID, "pong", struct{}{})

		case "create_room":
			s.handleCreateRoom(connectionID, msg.Payload)

		case "join_room":
			s.handleJoinRoom(connectionID, msg.Payload)

		case "accept_bet":
			s.handleAcceptBet(ctx, connectionID)

		case "decline_bet":
			s.handleDeclineBet(connectionID)

		case "cancel_room":
			s.handleCancelRoom(connectionID)

		case "list_rooms":
			s.send(connectionID, "lobby_update", LobbyListMessage{Rooms: s.roomManager.ListRooms()})

		case "move":
			s.handleMove(connectionID, msg.Payload)

		case "valid_moves":
			s.handleValidMoves(connectionID, msg.Payload)

		case "resign":
			s.handleSimpleRoomAction(connectionID, s.roomManager.Resign)

		case "offer_draw":
			s.handleSimpleRoomAction(connectionID, s.roomManager.OfferDraw)

		case "accept_draw":
			s.handleSimpleRoomAction(connectionID, s.roomManager.AcceptDraw)

		case "decline_draw":
			s.handleSimpleRoomAction(connectionID, s.roomManager.DeclineDraw)

		case "rematch":
			s.handleRematch(ctx, connectionID)

		case "reconnect":
			s.handleReconnect(connectionID, msg.Payload)

		case "request_sync":
			s.handleSync(connectionID)

		case "spectate":
			s.handleSpectate(connectionID, msg.Payload)

		default:
			s.sendError(connectionID, fmt.Sprintf("UNKNOWN_TYPE: Unknown message type: %s", msg.Type))
		}
	}
}

func (s *Server) send(connectionID, msgType string, payload interface{}) {
	s.connectionManager.SendToConnection(connectionID, ServerMessage{
		Type:    msgType,
		Payload: payload,
	})
}

func (s *Server) sendError(connectionID, msg string) {
	s.send(connectionID, "error", ErrorMessage{Message: msg})
}

func (s *Server) handleCreateRoom(connectionID string, payload json.RawMessage) {
	var req CreateRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(connectionID, "INVALID_PAYLOAD: Invalid create_room payload")
		return
	}

	room, token, err := s.roomManager.CreateRoom(
		req.Username, req.Bet, req.BoardSize, TimerMode(req.TimerMode), req.TimerSeconds)
	if err != nil {
		s.sendError(connectionID, err.Error())
		return
	}

	s.sessionManager.StoreSession(SessionInfo{
		Token:    token,
		RoomCode: room.Code,
		Identity: req.Username,
	})
	s.connectionManager.BindToken(connectionID, token)

	s.send(connectionID, "room_created", CreateRoomResponse{
		RoomCode: room.Code,
		Token:    token,
	})
}

func (s *Server) handleJoinRoom(connectionID string, payload json.RawMessage) {
	var req JoinRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(connectionID, "INVALID_PAYLOAD: Invalid join_room payload")
		return
	}

	room, token, err := s.roomManager.JoinRoom(req.RoomCode, req.Username)
	if err != nil {
		s.sendError(connectionID, err.Error())
		return
	}

	s.sessionManager.StoreSession(SessionInfo{
		Token:    token,
		RoomCode: room.Code,
		Identity: req.Username,
	})
	s.connectionManager.BindToken(connectionID, token)

	s.send(connectionID, "room_joined", JoinRoomResponse{
		Success:  true,
		RoomCode: room.Code,
		Token:    token,
		Bet:      room.Bet,
	})

	// The challenger confirms the stake before anything is debited.
	s.send(connectionID, "bet_confirmation_request", BetConfirmationNotification{
		RoomCode: room.Code,
		Bet:      room.Bet,
		Opponent: room.Seats[0].Identity,
	})
}

func (s *Server) handleAcceptBet(ctx context.Context, connectionID string) {
	token := s.connectionManager.GetTokenByConnection(connectionID)
	if token == "" {
		s.sendError(connectionID, "NOT_IN_ROOM: No active room session")
		return
	}

	if _, err := s.roomManager.AcceptBet(ctx, token); err != nil {
		s.sendError(connectionID, err.Error())
	}
}

func (s *Server) handleDeclineBet(connectionID string) {
	token := s.connectionManager.GetTokenByConnection(connectionID)
	if token == "" {
		s.sendError(connectionID, "NOT_IN_ROOM: No active room session")
		return
	}

	if err := s.roomManager.DeclineBet(token); err != nil {
		s.sendError(connectionID, err.Error())
		return
	}
	s.sessionManager.RemoveSession(token)
}

func (s *Server) handleCancelRoom(connectionID string) {
	token := s.connectionManager.GetTokenByConnection(connectionID)
	if token == "" {
		s.sendError(connectionID, "NOT_IN_ROOM: No active room session")
		return
	}

	if err := s.roomManager.CancelRoom(token); err != nil {
		s.sendError(connectionID, err.Error())
	}
}

func (s *Server) handleMove(connectionID string, payload json.RawMessage) {
	var req MoveRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(connectionID, "INVALID_PAYLOAD: Invalid move payload")
		return
	}

	token := s.connectionManager.GetTokenByConnection(connectionID)
	if token == "" {
		s.sendError(connectionID, "NOT_IN_ROOM: No active room session")
		return
	}

	res, err := s.roomManager.SubmitMove(token, req.From, req.To)
	if errors.Is(err, ErrIgnored) {
		// Out-of-turn or wrong-color input: dropped without a reply.
		return
	}
	if err != nil {
		s.send(connectionID, "invalid_move", MoveResultResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	s.send(connectionID, "move_result", MoveResultResponse{
		Success:     true,
		MayContinue: res.MayContinue,
	})
}

func (s *Server) handleValidMoves(connectionID string, payload json.RawMessage) {
	var req ValidMovesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(connectionID, "INVALID_PAYLOAD: Invalid valid_moves payload")
		return
	}

	token := s.connectionManager.GetTokenByConnection(connectionID)
	if token == "" {
		s.sendError(connectionID, "NOT_IN_ROOM: No active room session")
		return
	}

	dests, err := s.roomManager.ValidMoves(token, req.Square)
	if err != nil {
		s.sendError(connectionID, err.Error())
		return
	}

	s.send(connectionID, "valid_moves", ValidMovesResponse{
		Square:       req.Square,
		Destinations: dests,
	})
}

func (s *Server) handleSimpleRoomAction(connectionID string, action func(string) error) {
	token := s.connectionManager.GetTokenByConnection(connectionID)
	if token == "" {
		s.sendError(connectionID, "NOT_IN_ROOM: No active room session")
		return
	}

	if err := action(token); err != nil {
		s.sendError(connectionID, err.Error())
	}
}

func (s *Server) handleRematch(ctx context.Context, connectionID string) {
	token := s.connectionManager.GetTokenByConnection(connectionID)
	if token == "" {
		s.sendError(connectionID, "NOT_IN_ROOM: No active room session")
		return
	}

	if err := s.roomManager.RequestRematch(ctx, token); err != nil && !errors.Is(err, ErrInsufficientFunds) {
		s.sendError(connectionID, err.Error())
	}
}

func (s *Server) handleReconnect(connectionID string, payload json.RawMessage) {
	var req ReconnectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(connectionID, "INVALID_PAYLOAD: Invalid reconnect payload")
		return
	}

	session, err := s.sessionManager.GetSession(req.Token)
	if err != nil {
		s.sendError(connectionID, err.Error())
		return
	}

	// Evict any stale connection still holding this token.
	oldConnectionID := s.connectionManager.BindToken(connectionID, req.Token)
	if oldConnectionID != "" {
		s.connectionManager.SendToConnection(oldConnectionID, ServerMessage{
			Type:    "disconnected_elsewhere",
			Payload: ErrorMessage{Message: "You connected on another device"},
		})
		if oldConn := s.connectionManager.GetConnection(oldConnectionID); oldConn != nil {
			oldConn.Close(websocket.StatusNormalClosure, "Connected from another device")
		}
		s.connectionManager.RemoveConnection(oldConnectionID)
		// Eviction unbinds the token; rebind it to the new connection.
		s.connectionManager.BindToken(connectionID, req.Token)
	}

	if _, err := s.roomManager.HandleReconnect(req.Token); err != nil {
		s.sendError(connectionID, err.Error())
		return
	}

	s.send(connectionID, "reconnected", ReconnectResponse{
		Success:  true,
		RoomCode: session.RoomCode,
		Message:  "Successfully reconnected",
	})

	// The snapshot is the sole reconciliation mechanism: send it whenever
	// the game exists, and let the client drop its local prediction.
	if state, err := s.roomManager.StateSnapshot(req.Token); err == nil {
		s.send(connectionID, "game_state", state)
	}
}

func (s *Server) handleSync(connectionID string) {
	token := s.connectionManager.GetTokenByConnection(connectionID)
	if token == "" {
		s.sendError(connectionID, "NOT_IN_ROOM: No active room session")
		return
	}

	state, err := s.roomManager.StateSnapshot(token)
	if err != nil {
		s.sendError(connectionID, err.Error())
		return
	}
	s.send(connectionID, "game_state", state)
}

func (s *Server) handleSpectate(connectionID string, payload json.RawMessage) {
	var req SpectateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(connectionID, "INVALID_PAYLOAD: Invalid spectate payload")
		return
	}

	room, token, err := s.roomManager.Spectate(req.RoomCode)
	if err != nil {
		s.sendError(connectionID, err.Error())
		return
	}

	s.sessionManager.StoreSession(SessionInfo{
		Token:     token,
		RoomCode:  room.Code,
		Spectator: true,
	})
	s.connectionManager.BindToken(connectionID, token)

	if state, err := s.roomManager.StateSnapshot(token); err == nil {
		s.send(connectionID, "game_state", state)
	}
}

// serverNotifier adapts the connection manager to the Notifier contract.
// Every method is non-blocking: sends go through per-connection outboxes
// and the lobby roster is rebuilt off the calling goroutine.
type serverNotifier struct {
	server *Server
}

func (n *serverNotifier) ToToken(token, msgType string, payload interface{}) {
	n.server.connectionManager.SendToToken(token, ServerMessage{
		Type:    msgType,
		Payload: payload,
	})
}

func (n *serverNotifier) LobbyChanged() {
	// Rebuilt asynchronously: ListRooms locks rooms, and LobbyChanged can
	// be raised from inside a room handler.
	go func() {
		msg := ServerMessage{
			Type:    "lobby_update",
			Payload: LobbyListMessage{Rooms: n.server.roomManager.ListRooms()},
		}
		for _, id := range n.server.connectionManager.AllConnectionIDs() {
			n.server.connectionManager.SendToConnection(id, msg)
		}
	}()
}

func (n *serverNotifier) RoomClosed(roomCode string, tokens []string) {
	for _, token := range tokens {
		n.server.connectionManager.SendToToken(token, ServerMessage{
			Type:    "room_closed",
			Payload: ErrorMessage{Message: "Room closed"},
		})
	}
	n.server.sessionManager.RemoveRoomSessions(roomCode)
}
