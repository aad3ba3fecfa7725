package domain

// ChatMessage is one entry in the append-only room message sequence.
// Link carries a replay record id when the message announces a recording.
type ChatMessage struct {
	Account string `json:"account"`
	Text    string `json:"text"`
	Link    string `json:"link,omitempty"`
	TS      int64  `json:"ts"`
	ID      string `json:"id"`
}
