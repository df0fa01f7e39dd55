package internal

import "strings"

const DefaultGrade = "8"

type Player struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Grade string `json:"grade"`
}

// DisplayName falls back to a placeholder for players that never set a name.
func (p Player) DisplayName() string {
	if strings.TrimSpace(p.Name) == "" {
		return "Player"
	}
	return p.Name
}

func (p Player) PoolEntry(nowMs int64) PoolEntry {
	return PoolEntry{
		Name:      p.DisplayName(),
		Grade:     p.Grade,
		Timestamp: nowMs,
	}
}

func (p Player) OnlineEntry(nowMs int64) OnlineEntry {
	return OnlineEntry{
		Name:       p.DisplayName(),
		Grade:      p.Grade,
		JoinedAt:   nowMs,
		Status:     "online",
		LastActive: nowMs,
	}
}
