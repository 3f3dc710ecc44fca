package message

import (
	"testing"
	"time"
)

func TestReceiverFor(t *testing.T) {
	if got := ReceiverFor("d1", "d1", "o1"); got != "o1" {
		t.Errorf("dancer sender: receiver = %s, want o1", got)
	}
	if got := ReceiverFor("o1", "d1", "o1"); got != "d1" {
		t.Errorf("organizer sender: receiver = %s, want d1", got)
	}
}

func TestBlank(t *testing.T) {
	for _, s := range []string{"", " ", "\n\t  "} {
		if !Blank(s) {
			t.Errorf("Blank(%q) = false, want true", s)
		}
	}
	if Blank(" hi ") {
		t.Error("Blank(\" hi \") = true, want false")
	}
}

func TestUnreadFor(t *testing.T) {
	read := time.Now()
	thread := []Message{
		{ID: "m1", ReceiverID: "u1"},
		{ID: "m2", ReceiverID: "u2"},
		{ID: "m3", ReceiverID: "u1", ReadAt: &read},
		{ID: "m4", ReceiverID: "u1"},
	}
	got := UnreadFor(thread, "u1")
	if len(got) != 2 || got[0] != "m1" || got[1] != "m4" {
		t.Fatalf("UnreadFor() = %v, want [m1 m4]", got)
	}
	if ids := UnreadFor(thread, "nobody"); len(ids) != 0 {
		t.Fatalf("UnreadFor(nobody) = %v, want empty", ids)
	}
}

func TestSortThread(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "a", CreatedAt: base},
		{ID: "b1", CreatedAt: base.Add(time.Minute)},
		{ID: "b2", CreatedAt: base.Add(time.Minute)},
	}
	SortThread(msgs)
	want := []string{"a", "b1", "b2", "c"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(msgs), want)
		}
	}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
