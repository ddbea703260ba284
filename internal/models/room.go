package models

import "time"

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomInfo is a room together with the agents that have joined it.
type RoomInfo struct {
	Room   RoomSummary    `json:"room"`
	Agents []AgentSummary `json:"agents"`
}

// RoomSummary is the public view of a room; it never carries the key.
type RoomSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Room) Summary() RoomSummary {
	return RoomSummary{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
}
