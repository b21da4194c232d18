package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/systemtwo/research/internal/analysis"
	"github.com/systemtwo/research/internal/protocol"
)

type recorded struct {
	kind  string
	text  string
	fault *analysis.Fault
}

type recorder struct {
	events chan recorded
}

func newRecorder() *recorder {
	return &recorder{events: make(chan recorded, 32)}
}

func (r *recorder) handlers() analysis.Handlers {
	return analysis.Handlers{
		OnOpen:     func() { r.events <- recorded{kind: "open"} },
		OnProgress: func(msg string) { r.events <- recorded{kind: "progress", text: msg} },
		OnComplete: func(result string) { r.events <- recorded{kind: "complete", text: result} },
		OnError:    func(f *analysis.Fault) { r.events <- recorded{kind: "error", fault: f} },
	}
}

func (r *recorder) next(t *testing.T) recorded {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel event")
		return recorded{}
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(wait):
	}
}

// serveEvents starts a websocket endpoint that runs script against every
// connection and then holds the connection open until the client goes away.
func serveEvents(t *testing.T, script func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(conn, r)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + protocol.PathWS
}

func send(t *testing.T, conn *websocket.Conn, typ protocol.MessageType, sessionID string, seq uint64, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, sessionID, seq, payload)
	if err != nil {
		t.Errorf("NewEnvelope: %v", err)
		return
	}
	// The client may already have gone away after a terminal event.
	_ = conn.WriteJSON(env)
}

func connect(t *testing.T, wsURL, token, sessionID string) (*WSChannel, *recorder) {
	t.Helper()
	ch := NewWSChannel(wsURL, token, sessionID, nil)
	rec := newRecorder()
	if err := ch.Subscribe(rec.handlers()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	t.Cleanup(ch.Disconnect)
	ch.Connect(context.Background())
	return ch, rec
}

func TestWSChannelDeliversEventsInOrder(t *testing.T) {
	gotSession := make(chan string, 1)
	gotAuth := make(chan string, 1)
	wsURL := serveEvents(t, func(conn *websocket.Conn, r *http.Request) {
		gotSession <- r.URL.Query().Get(protocol.SessionParam)
		gotAuth <- r.Header.Get("Authorization")
		send(t, conn, protocol.MsgProgress, "s1", 1, protocol.ProgressPayload{Message: "Initializing research analyst..."})
		send(t, conn, protocol.MsgProgress, "s1", 2, protocol.ProgressPayload{Message: "Conducting financial analysis..."})
		send(t, conn, protocol.MsgComplete, "s1", 3, protocol.CompletePayload{Result: "AAPL: hold"})
		send(t, conn, protocol.MsgProgress, "s1", 4, protocol.ProgressPayload{Message: "too late"})
	})

	_, rec := connect(t, wsURL, "secret", "s1")

	want := []recorded{
		{kind: "open"},
		{kind: "progress", text: "Initializing research analyst..."},
		{kind: "progress", text: "Conducting financial analysis..."},
		{kind: "complete", text: "AAPL: hold"},
	}
	for i, w := range want {
		got := rec.next(t)
		if got.kind != w.kind || got.text != w.text {
			t.Fatalf("event %d = %+v, want %+v", i, got, w)
		}
	}
	rec.none(t, 100*time.Millisecond)

	if s := <-gotSession; s != "s1" {
		t.Errorf("session param = %q, want %q", s, "s1")
	}
	if a := <-gotAuth; a != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", a, "Bearer secret")
	}
}

func TestWSChannelErrorEvent(t *testing.T) {
	wsURL := serveEvents(t, func(conn *websocket.Conn, _ *http.Request) {
		send(t, conn, protocol.MsgError, "s1", 1, protocol.ErrorPayload{Error: "unknown ticker symbol: ZZZZ"})
	})

	_, rec := connect(t, wsURL, "", "s1")
	if ev := rec.next(t); ev.kind != "open" {
		t.Fatalf("first event = %+v, want open", ev)
	}
	ev := rec.next(t)
	if ev.kind != "error" {
		t.Fatalf("event = %+v, want error", ev)
	}
	if ev.fault.Kind != analysis.RemoteAnalysisFault || ev.fault.Detail != "unknown ticker symbol: ZZZZ" {
		t.Errorf("fault = %+v", ev.fault)
	}
}

func TestWSChannelMalformedEvent(t *testing.T) {
	wsURL := serveEvents(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"analysis_progress","payload":42}`))
		send(t, conn, protocol.MsgComplete, "s1", 2, protocol.CompletePayload{Result: "ignored"})
	})

	_, rec := connect(t, wsURL, "", "s1")
	rec.next(t) // open
	ev := rec.next(t)
	if ev.kind != "error" || ev.fault.Kind != analysis.RemoteAnalysisFault {
		t.Fatalf("event = %+v, want remote analysis fault", ev)
	}
	if ev.fault.Detail != analysis.MalformedEventDetail {
		t.Errorf("detail = %q, want %q", ev.fault.Detail, analysis.MalformedEventDetail)
	}
	rec.none(t, 100*time.Millisecond)
}

func TestWSChannelIgnoresOtherSessions(t *testing.T) {
	wsURL := serveEvents(t, func(conn *websocket.Conn, _ *http.Request) {
		send(t, conn, protocol.MsgProgress, "other", 1, protocol.ProgressPayload{Message: "not mine"})
		send(t, conn, protocol.MsgComplete, "other", 2, protocol.CompletePayload{Result: "not mine"})
		send(t, conn, protocol.MsgProgress, "s1", 1, protocol.ProgressPayload{Message: "mine"})
	})

	_, rec := connect(t, wsURL, "", "s1")
	rec.next(t) // open
	if ev := rec.next(t); ev.kind != "progress" || ev.text != "mine" {
		t.Fatalf("event = %+v, want own progress", ev)
	}
}

func TestWSChannelDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + protocol.PathWS
	srv.Close()

	ch, rec := connect(t, wsURL, "", "s1")
	ev := rec.next(t)
	if ev.kind != "error" || ev.fault.Kind != analysis.ConnectionFault {
		t.Fatalf("event = %+v, want connection fault", ev)
	}

	// A second Connect on a failed handle is a no-op.
	ch.Connect(context.Background())
	rec.none(t, 100*time.Millisecond)
}

func TestWSChannelSubscribeTwice(t *testing.T) {
	ch := NewWSChannel("ws://127.0.0.1:1/ws", "", "s1", nil)
	if err := ch.Subscribe(analysis.Handlers{}); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	if err := ch.Subscribe(analysis.Handlers{}); !errors.Is(err, analysis.ErrAlreadySubscribed) {
		t.Fatalf("second Subscribe err = %v, want ErrAlreadySubscribed", err)
	}
	ch.Unsubscribe()
	if err := ch.Subscribe(analysis.Handlers{}); err != nil {
		t.Fatalf("Subscribe after Unsubscribe: %v", err)
	}
}

func TestWSChannelDisconnectSuppressesEvents(t *testing.T) {
	release := make(chan struct{})
	wsURL := serveEvents(t, func(conn *websocket.Conn, _ *http.Request) {
		<-release
		send(t, conn, protocol.MsgProgress, "s1", 1, protocol.ProgressPayload{Message: "after disconnect"})
	})

	ch, rec := connect(t, wsURL, "", "s1")
	if ev := rec.next(t); ev.kind != "open" {
		t.Fatalf("event = %+v, want open", ev)
	}

	ch.Disconnect()
	ch.Disconnect()
	close(release)
	rec.none(t, 150*time.Millisecond)
}

func TestWSChannelDisconnectBeforeConnect(t *testing.T) {
	wsURL := serveEvents(t, func(conn *websocket.Conn, _ *http.Request) {
		send(t, conn, protocol.MsgProgress, "s1", 1, protocol.ProgressPayload{Message: "x"})
	})

	ch := NewWSChannel(wsURL, "", "s1", nil)
	rec := newRecorder()
	ch.Subscribe(rec.handlers())
	ch.Disconnect()
	ch.Connect(context.Background())
	rec.none(t, 100*time.Millisecond)
}

func TestSessionURL(t *testing.T) {
	got := SessionURL("ws://127.0.0.1:5000/ws?token=abc", "s 1")
	if !strings.HasPrefix(got, "ws://127.0.0.1:5000/ws?") {
		t.Fatalf("SessionURL = %q", got)
	}
	if !strings.Contains(got, "session=s+1") || !strings.Contains(got, "token=abc") {
		t.Errorf("SessionURL = %q, want session and token params", got)
	}
}
