package models

import "time"

type Agent struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// AgentSummary is what listing endpoints expose for an agent.
type AgentSummary struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

func (a Agent) Summary() AgentSummary {
	return AgentSummary{ID: a.ID, Name: a.Name, JoinedAt: a.JoinedAt}
}

func Summaries(agents []Agent) []AgentSummary {
	out := make([]AgentSummary, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Summary())
	}
	return out
}
