package database

import "testing"

func TestRebindPostgres(t *testing.T) {
	got := rebind(Postgres, "SELECT * FROM jobs WHERE status = ? AND message <> '?' AND id IN (?, ?)")
	want := "SELECT * FROM jobs WHERE status = $1 AND message <> '?' AND id IN ($2, $3)"
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}
	if got := rebind(SQLite, "id = ?"); got != "id = ?" {
		t.Fatalf("sqlite query rewritten: %q", got)
	}
}
