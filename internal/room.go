package internal

import (
	"path"
	"sort"
	"strings"
)

func DuelPath(code string) string {
	return path.Join(DuelsCollection, code)
}

func MatchmakingPath(playerID string) string {
	return path.Join(MatchmakingCollection, playerID)
}

// AccountPath keys accounts by lower-cased display name.
func AccountPath(name string) string {
	return path.Join(AccountsCollection, strings.ToLower(strings.TrimSpace(name)))
}

func OnlinePath(playerID string) string {
	return path.Join(OnlineCollection, playerID)
}

// Methods (RoomRecord struct)

func (r *RoomRecord) IsJoinable() bool {
	return r.Status == StatusWaiting && r.GuestID == ""
}

func (r *RoomRecord) HasGuest() bool {
	return r.GuestID != ""
}

// OpponentScore returns the score field owned by the other side.
func (r *RoomRecord) OpponentScore(isHost bool) int {
	if isHost {
		return r.GuestScore
	}
	return r.HostScore
}

// OpponentLives returns the other side's lives and whether the field is set.
func (r *RoomRecord) OpponentLives(isHost bool) (int, bool) {
	lives := r.HostLives
	if isHost {
		lives = r.GuestLives
	}
	if lives == nil {
		return 0, false
	}
	return *lives, true
}

func (r *RoomRecord) OpponentName(isHost bool) string {
	if isHost {
		return r.GuestName
	}
	return r.HostName
}

// HasNewQuestion reports whether the record carries a question for a round
// later than lastRound.
func (r *RoomRecord) HasNewQuestion(lastRound int) bool {
	return r.Round > lastRound && r.CurrentQuestion != nil
}

// SideFields builds the partial update owned by one side of the duel.
func SideFields(isHost bool, score, lives int) map[string]any {
	if isHost {
		return map[string]any{"hostScore": score, "hostLives": lives}
	}
	return map[string]any{"guestScore": score, "guestLives": lives}
}

// ResetFields is the host's round-zero publication.
func ResetFields() map[string]any {
	return map[string]any{
		"hostLives":  StartingLives,
		"guestLives": StartingLives,
		"hostScore":  0,
		"guestScore": 0,
		"round":      0,
	}
}

// QuestionFields is the host's per-round publication.
func QuestionFields(round int, q Question) map[string]any {
	return map[string]any{
		"round":           round,
		"currentQuestion": map[string]any{"text": q.Text, "answer": q.Answer},
		"currentAnswer":   q.Answer,
	}
}

// OpenRooms lists rooms a lobby visitor could join, oldest first. Rooms
// hosted by exclude are left out.
func OpenRooms(records map[string]RoomRecord, exclude string) []RoomListing {
	rooms := make([]RoomListing, 0, len(records))
	for id, rec := range records {
		if rec.Private || !rec.IsJoinable() || (exclude != "" && rec.HostID == exclude) {
			continue
		}
		rooms = append(rooms, RoomListing{ID: id, HostName: rec.HostName, CreatedAt: rec.CreatedAt})
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt != rooms[j].CreatedAt {
			return rooms[i].CreatedAt < rooms[j].CreatedAt
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}

func IntPtr(v int) *int {
	return &v
}
