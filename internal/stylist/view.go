package stylist

import "ootdStylist/internal/storage"

// View is a session plus the copy a client needs to draw the current screen.
type View struct {
	storage.Session
	Loading *LoadingView `json:"loading,omitempty"`
}

// LoadingView carries the rotating loading copy.
type LoadingView struct {
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	Messages   []string `json:"messages"`
	IntervalMS int      `json:"intervalMs"`
}

// ViewOf decorates s for display. Loading sessions get the message due for
// the time spent loading so far.
func (o *Orchestrator) ViewOf(s storage.Session) View {
	v := View{Session: s}
	if s.Screen != storage.ScreenLoading {
		return v
	}
	loading := o.messages.Loading
	v.Loading = &LoadingView{
		Title:      loading.Title,
		Message:    loading.MessageAt(o.now().Sub(s.LoadingSince)),
		Messages:   loading.Messages,
		IntervalMS: int(loading.Interval().Milliseconds()),
	}
	return v
}
