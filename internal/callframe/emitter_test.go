package callframe

import (
	"encoding/json"
	"testing"
)

func TestEmitterOnOff(t *testing.T) {
	var e Emitter
	var got []string

	subA := e.On("tick", func(ev Event) { got = append(got, "a") })
	e.On("tick", func(ev Event) { got = append(got, "b") })
	e.On("other", func(ev Event) { got = append(got, "other") })

	if e.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", e.Count())
	}

	e.Emit(Event{Name: "tick"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("handlers called = %v, want [a b]", got)
	}

	e.Off(subA)
	got = nil
	e.Emit(Event{Name: "tick"})
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("handlers after Off = %v, want [b]", got)
	}

	// Removing twice is a no-op
	e.Off(subA)
	if e.Count() != 2 {
		t.Errorf("Count() = %d, want 2", e.Count())
	}
}

func TestEmitterOffInsideHandler(t *testing.T) {
	var e Emitter
	calls := 0

	var sub Subscription
	sub = e.On("once", func(ev Event) {
		calls++
		e.Off(sub)
	})

	e.Emit(Event{Name: "once"})
	e.Emit(Event{Name: "once"})

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if e.Count() != 0 {
		t.Errorf("Count() = %d, want 0", e.Count())
	}
}

func TestEmitterNoHandlers(t *testing.T) {
	var e Emitter
	// Should not panic
	e.Emit(Event{Name: "nobody-listens"})
	e.Off(Subscription{event: "missing", id: 42})
}

func TestEventDecode(t *testing.T) {
	ev := Event{Name: EventCustomButtonClick, Data: json.RawMessage(`{"button_id": "captions"}`)}
	var click CustomButtonClick
	if err := ev.Decode(&click); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if click.ButtonID != "captions" {
		t.Errorf("ButtonID = %q, want %q", click.ButtonID, "captions")
	}

	empty := Event{Name: EventTranscriptionStarted}
	if err := empty.Decode(&click); err != nil {
		t.Errorf("Decode of empty payload should succeed, got %v", err)
	}
}

func TestParticipantsJSON(t *testing.T) {
	raw := []byte(`{
		"local": {"session_id": "s0", "user_name": "Bot", "local": true, "owner": true},
		"s1": {"session_id": "s1", "user_name": "Alice"},
		"s2": {"session_id": "s2", "user_name": "Bob"}
	}`)

	var p Participants
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if p.Local.UserName != "Bot" || !p.Local.Local {
		t.Errorf("Local = %+v, want Bot", p.Local)
	}
	if len(p.Remote) != 2 {
		t.Fatalf("len(Remote) = %d, want 2", len(p.Remote))
	}

	tests := []struct {
		sessionID string
		wantName  string
		wantOK    bool
	}{
		{"s0", "Bot", true},
		{"s1", "Alice", true},
		{"s2", "Bob", true},
		{"s3", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := p.Lookup(tt.sessionID)
		if ok != tt.wantOK || got.UserName != tt.wantName {
			t.Errorf("Lookup(%q) = (%q, %v), want (%q, %v)", tt.sessionID, got.UserName, ok, tt.wantName, tt.wantOK)
		}
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back Participants
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal of marshaled roster failed: %v", err)
	}
	if back.Local.SessionID != "s0" || len(back.Remote) != 2 {
		t.Errorf("marshaled roster lost entries: %+v", back)
	}
}
