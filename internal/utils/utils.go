package utils

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"strings"

	"github.com/scythe504/mathquest-backend/internal"
)

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// RoomCodeAlphabet omits I, L, O, 0 and 1 so codes can be read aloud.
const RoomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

var BotNames = []string{
	"MathBot", "CalcBot", "NumberBot", "QuizBot",
	"BrainBot", "SmartBot", "QuickBot", "MathAI",
}

// NewRand returns a math/rand source seeded from crypto/rand.
func NewRand() *rand.Rand {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.New(rand.NewSource(1))
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
}

// RandInt returns a uniform integer in [min, max]. An empty range yields min.
func RandInt(r *rand.Rand, min, max int) int {
	if max < min {
		return min
	}
	return min + r.Intn(max-min+1)
}

func GenerateRoomCode(r *rand.Rand) string {
	var sb strings.Builder
	sb.Grow(internal.RoomCodeLength)
	for range internal.RoomCodeLength {
		sb.WriteByte(RoomCodeAlphabet[r.Intn(len(RoomCodeAlphabet))])
	}
	return sb.String()
}

// NormalizeRoomCode upper-cases and trims user input.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode expects an already normalized code.
func ValidRoomCode(code string) bool {
	if len(code) != internal.RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(RoomCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

func RandomBotName(r *rand.Rand) string {
	return BotNames[r.Intn(len(BotNames))]
}
