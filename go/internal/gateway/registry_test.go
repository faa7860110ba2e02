package gateway

import (
	"errors"
	"testing"

	"github.com/mcdev12/huroof/go/internal/models"
)

func testConn() *Connection {
	return newConnection(nil, 8)
}

func host(session string) Identity {
	return Identity{SessionID: session, Role: models.RoleHost, Name: "host"}
}

func contestant(session, name string) Identity {
	return Identity{SessionID: session, Role: models.RoleContestant, Name: name}
}

func TestSecondHostIsRejected(t *testing.T) {
	r := NewRegistry()
	first, second := testConn(), testConn()

	if _, err := r.Register(first, host("AB12CD"), RegisterOptions{}); err != nil {
		t.Fatalf("first host: %v", err)
	}
	if _, err := r.Register(second, host("AB12CD"), RegisterOptions{}); !errors.Is(err, ErrRoleConflict) {
		t.Fatalf("expected ErrRoleConflict, got %v", err)
	}
	if r.Host("AB12CD") != first {
		t.Fatalf("host slot changed after rejected registration")
	}
	if _, ok := r.IdentityOf(second); ok {
		t.Fatalf("rejected connection was registered")
	}

	// a host in another session is independent
	if _, err := r.Register(second, host("ZZ99ZZ"), RegisterOptions{}); err != nil {
		t.Fatalf("host in other session: %v", err)
	}
}

func TestHostReclaimReplacesLiveConnection(t *testing.T) {
	r := NewRegistry()
	old, fresh := testConn(), testConn()
	r.Register(old, host("AB12CD"), RegisterOptions{})

	res, err := r.Register(fresh, host("AB12CD"), RegisterOptions{Reclaim: true})
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if res.Replaced != old {
		t.Fatalf("replaced = %v, want old connection", res.Replaced)
	}
	if r.Host("AB12CD") != fresh {
		t.Fatalf("host slot not handed to the reclaiming connection")
	}

	// the stale connection's later close must not clear the new slot
	if _, ok := r.Unregister(old); ok {
		t.Fatalf("stale connection still registered")
	}
	if r.Host("AB12CD") != fresh {
		t.Fatalf("stale unregister removed the live host")
	}
}

func TestHostReclaimRequiresSameName(t *testing.T) {
	r := NewRegistry()
	r.Register(testConn(), host("AB12CD"), RegisterOptions{})

	other := Identity{SessionID: "AB12CD", Role: models.RoleHost, Name: "someone else"}
	if _, err := r.Register(testConn(), other, RegisterOptions{Reclaim: true}); !errors.Is(err, ErrRoleConflict) {
		t.Fatalf("expected ErrRoleConflict, got %v", err)
	}
}

func TestDisplaySlotIsSingle(t *testing.T) {
	r := NewRegistry()
	display := Identity{SessionID: "AB12CD", Role: models.RoleDisplay, Name: "display"}
	first := testConn()

	if _, err := r.Register(first, display, RegisterOptions{}); err != nil {
		t.Fatalf("first display: %v", err)
	}
	if _, err := r.Register(testConn(), display, RegisterOptions{Reclaim: true}); !errors.Is(err, ErrDisplayOccupied) {
		t.Fatalf("expected ErrDisplayOccupied, got %v", err)
	}

	r.Unregister(first)
	if r.IsLive(display) {
		t.Fatalf("display slot not cleared on unregister")
	}
	if _, err := r.Register(testConn(), display, RegisterOptions{}); err != nil {
		t.Fatalf("display after release: %v", err)
	}
}

func TestContestantNames(t *testing.T) {
	r := NewRegistry()
	first := testConn()
	r.Register(first, contestant("AB12CD", "P1"), RegisterOptions{})

	if _, err := r.Register(testConn(), contestant("AB12CD", "P1"), RegisterOptions{}); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}

	again, err := r.Register(first, contestant("AB12CD", "P1"), RegisterOptions{})
	if err != nil || !again.Existing {
		t.Fatalf("same connection re-registering: %+v, %v", again, err)
	}

	if _, err := r.Register(first, contestant("AB12CD", "P2"), RegisterOptions{}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	fresh := testConn()
	res, err := r.Register(fresh, contestant("AB12CD", "P1"), RegisterOptions{Reclaim: true})
	if err != nil || res.Replaced != first {
		t.Fatalf("reclaim: %+v, %v", res, err)
	}
	if got, _ := fresh.Identity(); got.Name != "P1" {
		t.Fatalf("identity not bound to connection: %+v", got)
	}
}

func TestSessionIndexAndStats(t *testing.T) {
	r := NewRegistry()
	h := testConn()
	r.Register(h, host("AB12CD"), RegisterOptions{})
	r.Register(testConn(), contestant("AB12CD", "P1"), RegisterOptions{})
	r.Register(testConn(), contestant("AB12CD", "P2"), RegisterOptions{})
	r.Register(testConn(), contestant("ZZ99ZZ", "P1"), RegisterOptions{})

	if n := len(r.SessionConnections("AB12CD")); n != 3 {
		t.Fatalf("AB12CD has %d connections, want 3", n)
	}
	if hosts := r.RoleConnections("AB12CD", models.RoleHost); len(hosts) != 1 || hosts[0] != h {
		t.Fatalf("role index wrong: %v", hosts)
	}

	stats := r.Stats()
	if stats.Connections != 4 || stats.Sessions != 2 || stats.ByRole["contestant"] != 3 {
		t.Fatalf("stats = %+v", stats)
	}

	r.Unregister(h)
	for _, c := range r.SessionConnections("AB12CD") {
		r.Unregister(c)
	}
	if r.Stats().Sessions != 1 {
		t.Fatalf("empty session index not dropped")
	}
}
