package captions

// Toggle actions offered by the view.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// View is what the caption overlay displays.
type View struct {
	Caption       string `json:"caption,omitempty"`
	ShowCaption   bool   `json:"show_caption"`
	ShowToggle    bool   `json:"show_toggle"`
	ToggleAction  string `json:"toggle_action"`
	Transcribing  bool   `json:"transcribing"`
	SessionActive bool   `json:"session_active"`
}

// Render derives the overlay view from a snapshot. The latest caption is shown
// only while transcribing. The toggle always offers the opposite of the current
// state, and the overlay shows it only after the join succeeded.
func Render(s Snapshot, p Placement) View {
	v := View{
		Transcribing:  s.Transcribing,
		SessionActive: s.Active,
		ToggleAction:  ActionStart,
		ShowToggle:    p == PlacementOverlay && s.Joined,
	}
	if s.Transcribing {
		v.ToggleAction = ActionStop
		if s.Last != "" {
			v.Caption = s.Last
			v.ShowCaption = true
		}
	}
	return v
}
