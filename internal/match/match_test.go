package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmpark-dev/chess-room-backend/internal/room"
	"github.com/jmpark-dev/chess-room-backend/internal/rules"
)

type stubEngine struct {
	turn     rules.Side
	terminal bool
	term     rules.Termination
}

func (s *stubEngine) Reset()                         { s.turn = rules.SideWhite }
func (s *stubEngine) ApplyMove(string) error         { s.turn = s.turn.Opponent(); return nil }
func (s *stubEngine) Turn() rules.Side               { return s.turn }
func (s *stubEngine) IsTerminal() bool               { return s.terminal }
func (s *stubEngine) Termination() rules.Termination { return s.term }
func (s *stubEngine) Serialize() string              { return "stub-fen" }

// recvNotice receives one notice with a timeout so tests never hang.
func recvNotice(t *testing.T, ch <-chan Notice, within time.Duration) Notice {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return n
	case <-time.After(within):
		t.Fatalf("timed out waiting for notice")
		return Notice{} // unreachable
	}
}

func recvNoNotice(t *testing.T, ch <-chan Notice, within time.Duration) {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no notice within %v, but got: %+v", within, n)
	case <-time.After(within):
	}
}

func recvClosed(t *testing.T, ch <-chan Notice, within time.Duration) {
	t.Helper()
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-time.After(within):
			t.Fatalf("timed out waiting for outbox close")
		}
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

type matchFixture struct {
	m      *Match
	eng    *stubEngine
	closed chan string
}

func newMatchFixture(t *testing.T) *matchFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	eng := &stubEngine{turn: rules.SideWhite}
	closed := make(chan string, 1)
	hooks := Hooks{
		Closed: func(code string) { closed <- code },
	}
	m := New(ctx, "r1", room.New("r1", eng), hooks, zap.NewNop())
	return &matchFixture{m: m, eng: eng, closed: closed}
}

func (f *matchFixture) join(t *testing.T, nickname string, buf int) (string, chan Notice) {
	t.Helper()
	out := make(chan Notice, buf)
	reply := make(chan error, 1)
	clientID := "client-" + nickname
	f.m.Inbox() <- Join{ClientID: clientID, Nickname: nickname, Outbox: out, Reply: reply}
	select {
	case err := <-reply:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for join reply")
	}
	return clientID, out
}

func TestMatch_JoinBroadcastsSnapshot(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, out := f.join(t, "alice", 4)
	n := recvNotice(t, out, time.Second)
	req.Equal(1, n.Version)
	req.Len(n.Snapshot.Players, 1)
	req.Equal(room.PhaseOpen, n.Snapshot.Phase)
}

func TestMatch_JoinFailureRepliesWithoutRegistering(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, aliceOut := f.join(t, "alice", 8)
	f.join(t, "bob", 8)

	out := make(chan Notice, 4)
	reply := make(chan error, 1)
	f.m.Inbox() <- Join{ClientID: "client-carol", Nickname: "carol", Outbox: out, Reply: reply}
	req.ErrorIs(<-reply, room.ErrFull)

	// carol saw nothing; the room still has two players.
	recvNoNotice(t, out, 100*time.Millisecond)
	first := recvNotice(t, aliceOut, time.Second)
	req.Len(first.Snapshot.Players, 1)
}

func TestMatch_ReadyUpStartsGameInOrder(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, aliceOut := f.join(t, "alice", 8)
	f.join(t, "bob", 8)

	yes := true
	f.m.Inbox() <- FromClient{ClientID: "client-alice", Cmd: Command{Type: CmdSetReady, Nickname: "alice", Ready: &yes}}
	f.m.Inbox() <- FromClient{ClientID: "client-bob", Cmd: Command{Type: CmdSetReady, Nickname: "bob", Ready: &yes}}

	// Every mutation arrives, in order, with consecutive versions.
	var last Notice
	for want := 1; want <= 4; want++ {
		last = recvNotice(t, aliceOut, time.Second)
		req.Equal(want, last.Version)
	}
	req.Equal(room.PhasePlaying, last.Snapshot.Phase)
	req.Equal(rules.SideWhite, last.Snapshot.Turn)
}

func TestMatch_ErrorGoesOnlyToOffender(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, aliceOut := f.join(t, "alice", 8)
	_, bobOut := f.join(t, "bob", 8)

	// Drain join snapshots.
	recvNotice(t, aliceOut, time.Second)
	recvNotice(t, aliceOut, time.Second)
	recvNotice(t, bobOut, time.Second)

	// Moving before the game starts is rejected.
	f.m.Inbox() <- FromClient{ClientID: "client-bob", Cmd: Command{Type: CmdMove, Nickname: "bob", Move: "e4"}}

	n := recvNotice(t, bobOut, time.Second)
	req.NotEmpty(n.Err)
	req.Nil(n.Snapshot)
	recvNoNotice(t, aliceOut, 100*time.Millisecond)
}

func TestMatch_DisconnectDuringPlayEndsGame(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, aliceOut := f.join(t, "alice", 16)
	_, bobOut := f.join(t, "bob", 16)

	yes := true
	f.m.Inbox() <- FromClient{ClientID: "client-alice", Cmd: Command{Type: CmdSetReady, Nickname: "alice", Ready: &yes}}
	f.m.Inbox() <- FromClient{ClientID: "client-bob", Cmd: Command{Type: CmdSetReady, Nickname: "bob", Ready: &yes}}

	f.m.Inbox() <- Disconnect{ClientID: "client-bob", Nickname: "bob"}

	// alice sees every transition; the last one carries the result.
	var final Notice
	for want := 1; want <= 5; want++ {
		final = recvNotice(t, aliceOut, time.Second)
		req.Equal(want, final.Version)
	}
	req.Equal(room.PhaseFinished, final.Snapshot.Phase)
	req.Equal(room.ReasonOpponentLeft, final.Snapshot.Result.Reason)
	req.Equal("alice", final.Snapshot.Result.Winner)

	// The match tears itself down and tells the hub.
	select {
	case code := <-f.closed:
		req.Equal("r1", code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for closed hook")
	}
	recvClosed(t, aliceOut, time.Second)
	recvClosed(t, bobOut, time.Second)
}

func TestMatch_DrawOfferThenLeavePrefersOpponentLeft(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, aliceOut := f.join(t, "alice", 16)
	f.join(t, "bob", 16)

	yes := true
	f.m.Inbox() <- FromClient{ClientID: "client-alice", Cmd: Command{Type: CmdSetReady, Nickname: "alice", Ready: &yes}}
	f.m.Inbox() <- FromClient{ClientID: "client-bob", Cmd: Command{Type: CmdSetReady, Nickname: "bob", Ready: &yes}}
	f.m.Inbox() <- FromClient{ClientID: "client-alice", Cmd: Command{Type: CmdOfferDraw, Nickname: "alice"}}
	f.m.Inbox() <- Disconnect{ClientID: "client-bob", Nickname: "bob"}

	var final Notice
	for want := 1; want <= 6; want++ {
		final = recvNotice(t, aliceOut, time.Second)
		req.Equal(want, final.Version)
	}
	req.Equal(room.ReasonOpponentLeft, final.Snapshot.Result.Reason)
	req.Equal("alice", final.Snapshot.Result.Winner)
}

func TestMatch_ResignBroadcastsResultThenCloses(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, aliceOut := f.join(t, "alice", 16)
	f.join(t, "bob", 16)

	yes := true
	f.m.Inbox() <- FromClient{ClientID: "client-alice", Cmd: Command{Type: CmdSetReady, Nickname: "alice", Ready: &yes}}
	f.m.Inbox() <- FromClient{ClientID: "client-bob", Cmd: Command{Type: CmdSetReady, Nickname: "bob", Ready: &yes}}
	f.m.Inbox() <- FromClient{ClientID: "client-alice", Cmd: Command{Type: CmdResign, Nickname: "alice"}}

	var final Notice
	for want := 1; want <= 5; want++ {
		final = recvNotice(t, aliceOut, time.Second)
		req.Equal(want, final.Version)
	}
	req.Equal(room.ReasonResignation, final.Snapshot.Result.Reason)
	req.Equal("bob", final.Snapshot.Result.Winner)
	recvClosed(t, aliceOut, time.Second)
}

func TestMatch_UnknownNicknameDropsConnection(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, aliceOut := f.join(t, "alice", 8)
	recvNotice(t, aliceOut, time.Second)

	// A command for a nickname that never joined is fatal to the connection
	// that sent it: one error notice, then the outbox closes.
	f.m.Inbox() <- FromClient{ClientID: "client-alice", Cmd: Command{Type: CmdSetReady, Nickname: "ghost"}}

	n := recvNotice(t, aliceOut, time.Second)
	req.NotEmpty(n.Err)
	recvClosed(t, aliceOut, time.Second)
}

func TestMatch_SlowClientDropped(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	// Buffer of 1 fills on the join snapshot; the next broadcast drops us.
	f.join(t, "alice", 1)
	f.join(t, "bob", 8)

	reply := make(chan View, 1)
	f.m.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, time.Second)
	req.Equal(1, view.NumClients)
	req.Len(view.Snapshot.Players, 2)
}

func TestMatch_RequestsAfterTeardownFailFast(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, out := f.join(t, "alice", 8)
	f.m.Inbox() <- Disconnect{ClientID: "client-alice", Nickname: "alice"}

	select {
	case <-f.closed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for closed hook")
	}
	recvClosed(t, out, time.Second)

	// The hub can hand out a match right before it tears down; a join that
	// raced in must not strand its connection without an answer.
	reply := make(chan error, 1)
	f.m.Inbox() <- Join{ClientID: "client-bob", Nickname: "bob", Outbox: make(chan Notice, 8), Reply: reply}
	select {
	case err := <-reply:
		req.ErrorIs(err, ErrClosed)
	case <-f.m.Done():
	case <-time.After(time.Second):
		t.Fatal("join against a closed room did not fail fast")
	}

	// Same for a state query.
	view := make(chan View, 1)
	select {
	case f.m.Inbox() <- GetState{Reply: view}:
	case <-f.m.Done():
	}
	select {
	case <-view:
	case <-f.m.Done():
	case <-time.After(time.Second):
		t.Fatal("state query against a closed room did not fail fast")
	}
}

func TestMatch_EmptyRoomTearsDown(t *testing.T) {
	req := require.New(t)
	f := newMatchFixture(t)

	_, out := f.join(t, "alice", 8)
	f.m.Inbox() <- Disconnect{ClientID: "client-alice", Nickname: "alice"}

	select {
	case code := <-f.closed:
		req.Equal("r1", code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for closed hook")
	}
	recvClosed(t, out, time.Second)
}
