package callframe

import "encoding/json"

// Participant is one entry of the call roster.
type Participant struct {
	SessionID string `json:"session_id"`
	UserName  string `json:"user_name"`
	UserID    string `json:"user_id,omitempty"`
	Local     bool   `json:"local"`
	Owner     bool   `json:"owner"`
}

// Participants is the call roster. On the wire it is a single object keyed by
// session id, with the local participant under "local".
type Participants struct {
	Local  Participant
	Remote map[string]Participant
}

// Lookup finds a participant by session id, local participant included.
func (p Participants) Lookup(sessionID string) (Participant, bool) {
	if sessionID == "" {
		return Participant{}, false
	}
	if p.Local.SessionID == sessionID {
		return p.Local, true
	}
	rp, ok := p.Remote[sessionID]
	return rp, ok
}

func (p *Participants) UnmarshalJSON(b []byte) error {
	var raw map[string]Participant
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.Local = raw["local"]
	delete(raw, "local")
	p.Remote = raw
	return nil
}

func (p Participants) MarshalJSON() ([]byte, error) {
	out := make(map[string]Participant, len(p.Remote)+1)
	for id, rp := range p.Remote {
		out[id] = rp
	}
	out["local"] = p.Local
	return json.Marshal(out)
}
