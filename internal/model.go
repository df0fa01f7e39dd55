package internal

import (
	"time"
)

const (
	StartingLives       = 3
	RoundSeconds        = 10
	TimePotionSeconds   = 5
	AdvanceDelay        = 1500 * time.Millisecond
	FinalAdvanceDelay   = 900 * time.Millisecond
	RoomCleanupDelay    = 5 * time.Second
	MatchmakingTimeout  = 30 * time.Second
	OfflineMatchDelay   = 3 * time.Second
	OfflinePrivateDelay = 2 * time.Second
	RoomCodeLength      = 4
	RoomCodeAttempts    = 5
)

// Store collections shared by every client of the relay.
const (
	DuelsCollection       = "duels"
	MatchmakingCollection = "matchmaking"
	AccountsCollection    = "accounts"
	OnlineCollection      = "online"
)

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusReady    RoomStatus = "ready"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
)

type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyMedium    Difficulty = "medium"
	DifficultyHard      Difficulty = "hard"
	DifficultyChallenge Difficulty = "challenge"
)

type Question struct {
	Text   string `json:"text"`
	Answer int    `json:"answer"`
}

// RoomRecord is the shared duel document stored at duels/<code>.
type RoomRecord struct {
	HostID          string     `json:"hostId"`
	GuestID         string     `json:"guestId,omitempty"`
	HostName        string     `json:"hostName"`
	GuestName       string     `json:"guestName,omitempty"`
	Status          RoomStatus `json:"status"`
	Round           int        `json:"round"`
	CurrentQuestion *Question  `json:"currentQuestion,omitempty"`
	CurrentAnswer   *int       `json:"currentAnswer,omitempty"`
	HostScore       int        `json:"hostScore"`
	GuestScore      int        `json:"guestScore"`
	HostLives       *int       `json:"hostLives,omitempty"`
	GuestLives      *int       `json:"guestLives,omitempty"`
	Private         bool       `json:"private"`
	CreatedAt       int64      `json:"createdAt"`
}

// PoolEntry is a matchmaking queue record stored at matchmaking/<playerId>.
type PoolEntry struct {
	Name      string `json:"name"`
	Grade     string `json:"grade"`
	Timestamp int64  `json:"timestamp"`

	// Claim fields written during pairing
	MatchedBy string `json:"matchedBy,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	HostName  string `json:"hostName,omitempty"`
}

type Account struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type OnlineEntry struct {
	Name       string `json:"name"`
	Grade      string `json:"grade"`
	JoinedAt   int64  `json:"joinedAt"`
	Status     string `json:"status"`
	LastActive int64  `json:"lastActive"`
}

type Response struct {
	StatusCode    int   `json:"status_code"`
	RespStartTime int64 `json:"resp_time_start_ms"`
	RespEndTime   int64 `json:"resp_time_end_ms"`
	NetRespTime   int64 `json:"net_resp_time_ms"`
	Data          any   `json:"data"`
}

// RoomListing is a lobby row for a waiting room.
type RoomListing struct {
	ID        string `json:"id"`
	HostName  string `json:"hostName"`
	CreatedAt int64  `json:"createdAt"`
}

// DuelSummary is an archived finished duel.
type DuelSummary struct {
	ID         string    `json:"id"`
	RoomCode   string    `json:"room_code"`
	HostID     string    `json:"host_id"`
	GuestID    string    `json:"guest_id"`
	HostName   string    `json:"host_name"`
	GuestName  string    `json:"guest_name"`
	HostScore  int       `json:"host_score"`
	GuestScore int       `json:"guest_score"`
	HostLives  int       `json:"host_lives"`
	GuestLives int       `json:"guest_lives"`
	Rounds     int       `json:"rounds"`
	Private    bool      `json:"private"`
	CreatedAt  int64     `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}
