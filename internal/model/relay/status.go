package relay

// SpeakingStatus reports whether a relay call is in flight and when the last
// one finished (unix seconds, 0 if never).
type SpeakingStatus struct {
	Speaking    bool  `json:"speaking"`
	LastSpokeAt int64 `json:"last_spoke"`
}
