package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/magefree/mage-duel-server/internal/broadcast"
	"github.com/magefree/mage-duel-server/internal/config"
	"github.com/magefree/mage-duel-server/internal/game"
	"github.com/magefree/mage-duel-server/internal/repository"
	"github.com/magefree/mage-duel-server/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testStack struct {
	srv *httptest.Server
	svc *service.Service
	hub *Hub
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	logger := zap.NewNop()

	dir := repository.NewMemoryDirectory()
	for _, name := range []string{"alice", "bob", "carol"} {
		dir.AddUser(game.Identity{UserID: "u-" + name, Username: name})
		cards := make([]game.CardTemplate, 40)
		for i := range cards {
			cards[i] = game.CardTemplate{TemplateID: fmt.Sprintf("%s-%d", name, i), Name: fmt.Sprintf("%s card %d", name, i)}
		}
		dir.AddDeck(game.Deck{ID: "d-" + name, Name: name + " deck", OwnerID: "u-" + name, Cards: cards})
	}

	hub := NewHub(logger)
	bc := broadcast.New(hub, hub, logger)
	mgr := game.NewManager(game.DefaultRules(), bc.HandleCommit, logger)
	svc := service.New(mgr, dir, dir, logger)
	router := NewRouter(svc, hub, time.Second, true, logger)

	cfg := config.Default().Server.WebSocket
	ws := NewWebSocketServer(cfg, hub, router, logger)
	srv := httptest.NewServer(ws.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = ws.Shutdown(context.Background())
		bc.Close()
	})
	return &testStack{srv: srv, svc: svc, hub: hub}
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (s *testStack) dial(t *testing.T, userID string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	if userID != "" {
		url += "?user_id=" + userID
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{t: t, conn: conn}
	if userID != "" {
		c.waitFor(EventIdentified, nil)
	}
	return c
}

func (c *wsClient) send(typ, sessionID string, payload any) {
	c.t.Helper()
	msg := map[string]any{"type": typ}
	if sessionID != "" {
		msg["session_id"] = sessionID
	}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// waitFor reads frames until one with the event name satisfies match.
func (c *wsClient) waitFor(event string, match func(json.RawMessage) bool) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var f frame
		require.NoError(c.t, c.conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event && (match == nil || match(f.Data)) {
			return f.Data
		}
	}
}

func (c *wsClient) waitForState(match func(game.Projection) bool) game.Projection {
	c.t.Helper()
	var proj game.Projection
	c.waitFor(EventGameState, func(raw json.RawMessage) bool {
		var p game.Projection
		if json.Unmarshal(raw, &p) != nil {
			return false
		}
		if match(p) {
			proj = p
			return true
		}
		return false
	})
	return proj
}

func (c *wsClient) waitForError(request string) ErrorPayload {
	c.t.Helper()
	var out ErrorPayload
	c.waitFor(EventError, func(raw json.RawMessage) bool {
		var p ErrorPayload
		_ = json.Unmarshal(raw, &p)
		if p.Request == request {
			out = p
			return true
		}
		return false
	})
	return out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// TestDuelOverWebSocket plays a lobby-to-first-card round trip with two real clients
func TestDuelOverWebSocket(t *testing.T) {
	stack := newTestStack(t)
	alice := stack.dial(t, "u-alice")
	bob := stack.dial(t, "u-bob")

	alice.send(CmdCreateSession, "", map[string]string{"name": "Friday duel"})
	created := decode[game.Summary](t, alice.waitFor(EventSessionCreated, nil))
	assert.Equal(t, "Friday duel", created.Name)
	sid := created.ID

	bob.send(CmdJoinSession, sid, nil)
	details := decode[game.Details](t, bob.waitFor(EventSessionDetails, nil))
	require.Len(t, details.Players, 2)

	alice.send(CmdSelectDeck, "", map[string]string{"deck_id": "d-alice"})
	alice.waitFor(EventAck, nil)
	bob.send(CmdSelectDeck, sid, map[string]string{"deck_id": "d-bob"})
	bob.waitFor(EventAck, nil)
	alice.send(CmdToggleReady, sid, nil)
	alice.waitFor(EventAck, nil)
	bob.send(CmdToggleReady, sid, nil)
	bob.waitFor(EventAck, nil)

	alice.send(CmdStartGame, sid, nil)
	started := func(p game.Projection) bool { return p.Status == game.StatusStarted }
	aliceView := alice.waitForState(started)
	bobView := bob.waitForState(started)

	require.Len(t, aliceView.Players, 2)
	assert.Len(t, aliceView.Players[0].Hand, 7)
	assert.Nil(t, aliceView.Players[1].Hand)
	assert.Equal(t, 7, aliceView.Players[1].HandCount)
	assert.Nil(t, bobView.Players[0].Hand)
	assert.Len(t, bobView.Players[1].Hand, 7)
	assert.Equal(t, "u-alice", aliceView.Turn)
	assert.Equal(t, aliceView.StateHash, bobView.StateHash)

	card := aliceView.Players[0].Hand[0]
	alice.send(CmdPlayCard, sid, map[string]string{"card_id": card.ID})
	onBoard := bob.waitForState(func(p game.Projection) bool { return len(p.Players[0].Battlefield) == 1 })
	assert.Equal(t, card.ID, onBoard.Players[0].Battlefield[0].ID)

	logged := decode[game.LogEvent](t, bob.waitFor(EventLog, func(raw json.RawMessage) bool {
		return strings.Contains(string(raw), "plays")
	}))
	assert.Equal(t, "alice plays "+card.Name, logged.Message)

	bob.send(CmdPlayCard, sid, map[string]string{"card_id": card.ID})
	errPayload := bob.waitForError(CmdPlayCard)
	assert.Equal(t, CodeNotFound, errPayload.Code)

	bob.send(CmdChangeLife, sid, map[string]any{"target_id": "u-alice", "amount": -45})
	drained := alice.waitForState(func(p game.Projection) bool { return p.Players[0].Life == 0 })
	assert.Equal(t, 0, drained.Players[0].Life)

	alice.send(CmdLookAtLibrary, sid, map[string]int{"count": 2})
	top := decode[[]game.CardView](t, alice.waitFor(EventLibraryCards, nil))
	assert.Len(t, top, 2)
}

// TestServeOnBoundListener verifies the server answers as soon as Serve is
// handed an already bound listener, and returns cleanly on shutdown
func TestServeOnBoundListener(t *testing.T) {
	logger := zap.NewNop()
	hub := NewHub(logger)
	svc := service.New(game.NewManager(game.DefaultRules(), nil, logger), repository.NewMemoryDirectory(), repository.NewMemoryDirectory(), logger)
	ws := NewWebSocketServer(config.Default().Server.WebSocket, hub, NewRouter(svc, hub, time.Second, false, logger), logger)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- ws.Serve(lis) }()

	resp, err := http.Get("http://" + lis.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ws.Shutdown(context.Background()))
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestUnidentifiedConnection(t *testing.T) {
	stack := newTestStack(t)
	anon := stack.dial(t, "")

	anon.send(CmdCreateSession, "", nil)
	assert.Equal(t, CodeUnauthenticated, anon.waitForError(CmdCreateSession).Code)

	anon.send(CmdListSessions, "", nil)
	anon.waitFor(EventSessionsList, nil)

	anon.send(CmdIdentify, "", map[string]string{"user_id": "u-nobody"})
	assert.Equal(t, CodeNotFound, anon.waitForError(CmdIdentify).Code)

	anon.send(CmdIdentify, "", map[string]string{"user_id": "u-carol"})
	id := decode[game.Identity](t, anon.waitFor(EventIdentified, nil))
	assert.Equal(t, "carol", id.Username)
}

func TestBadFrames(t *testing.T) {
	stack := newTestStack(t)
	c := stack.dial(t, "u-alice")

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	bad := decode[ErrorPayload](t, c.waitFor(EventError, nil))
	assert.Equal(t, CodeInvalidArgument, bad.Code)

	c.send("summon_dragon", "s1", nil)
	assert.Equal(t, CodeInvalidArgument, c.waitForError("summon_dragon").Code)

	c.send(CmdPlayCard, "", map[string]string{"card_id": "x"})
	assert.Equal(t, CodeInvalidArgument, c.waitForError(CmdPlayCard).Code)

	c.send(CmdGetState, "missing", nil)
	assert.Equal(t, CodeNotFound, c.waitForError(CmdGetState).Code)
}

func TestAbandonedSessionIsRemoved(t *testing.T) {
	stack := newTestStack(t)
	alice := stack.dial(t, "u-alice")

	alice.send(CmdCreateSession, "", nil)
	alice.waitFor(EventSessionCreated, nil)
	require.Len(t, stack.svc.ListSessions(), 1)

	require.NoError(t, alice.conn.Close())
	require.Eventually(t, func() bool {
		return len(stack.svc.ListSessions()) == 0 && stack.hub.Count() == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDeleteSessionNotifiesLobby(t *testing.T) {
	stack := newTestStack(t)
	alice := stack.dial(t, "u-alice")
	bob := stack.dial(t, "u-bob")

	alice.send(CmdCreateSession, "", nil)
	sid := decode[game.Summary](t, alice.waitFor(EventSessionCreated, nil)).ID
	bob.waitFor(EventSessionsList, func(raw json.RawMessage) bool { return strings.Contains(string(raw), sid) })

	bob.send(CmdJoinSession, sid, nil)
	bob.waitFor(EventSessionDetails, nil)

	bob.send(CmdDeleteSession, sid, nil)
	assert.Equal(t, CodeInvalidState, bob.waitForError(CmdDeleteSession).Code)

	alice.send(CmdDeleteSession, sid, nil)
	alice.waitFor(EventAck, func(raw json.RawMessage) bool { return strings.Contains(string(raw), CmdDeleteSession) })
	bob.waitFor(EventSessionsList, func(raw json.RawMessage) bool { return string(raw) == "[]" })
	assert.Empty(t, stack.hub.MembersOf(sid))
}
