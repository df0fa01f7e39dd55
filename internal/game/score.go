package game

import (
	"math"
)

const (
	BasePoints        = 20
	DoublePointsBonus = 20
	StreakBonus       = 5
	StreakBonusEvery  = 3
	BotCorrectPoints  = 20

	RewardWin  = 50
	RewardLoss = 10
	RewardDraw = 25
)

type Outcome string

const (
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
	OutcomeDraw    Outcome = "draw"
)

// Resolution describes how one submitted answer changed the duel.
type Resolution struct {
	Round      int
	Answer     int
	Correct    bool
	Timeout    bool
	Points     int
	Bonus      int
	DoubleUsed bool
	ShieldUsed bool
	LifeLost   bool
}

type Result struct {
	Outcome       Outcome
	Reason        string
	PlayerName    string
	OpponentName  string
	PlayerScore   int
	OpponentScore int
	PlayerLives   int
	OpponentLives int
	Rounds        int
	Accuracy      int
	BestStreak    int
	Reward        int
	VsBot         bool
}

// resolveAnswer applies one answer to s. Buffs are one-shot and consumed
// only when they take effect.
func resolveAnswer(s *DuelState, correct, timeout bool) Resolution {
	res := Resolution{Round: s.Round, Correct: correct, Timeout: timeout}
	if s.CurrentQuestion != nil {
		res.Answer = s.CurrentQuestion.Answer
	}

	if correct {
		points := BasePoints
		if s.BuffDoublePoints {
			points += DoublePointsBonus
			s.BuffDoublePoints = false
			res.DoubleUsed = true
		}
		s.PlayerScore += points
		s.PlayerStreak++
		s.PlayerCorrect++
		s.PlayerBestStreak = max(s.PlayerBestStreak, s.PlayerStreak)
		res.Points = points

		if s.PlayerStreak%StreakBonusEvery == 0 {
			s.PlayerScore += StreakBonus
			res.Bonus = StreakBonus
		}
		return res
	}

	if s.BuffShield {
		s.BuffShield = false
		res.ShieldUsed = true
		return res
	}

	s.PlayerLives--
	s.PlayerStreak = 0
	res.LifeLost = true
	return res
}

func compareScores(player, opponent int) Outcome {
	switch {
	case player > opponent:
		return OutcomeVictory
	case player < opponent:
		return OutcomeDefeat
	default:
		return OutcomeDraw
	}
}

// decideOutcome ranks life exhaustion first, then remaining lives, then score.
func decideOutcome(s DuelState) (Outcome, string) {
	switch {
	case s.PlayerLives > 0 && s.OpponentLives <= 0:
		return OutcomeVictory, "Opponent ran out of lives"
	case s.PlayerLives <= 0 && s.OpponentLives > 0:
		return OutcomeDefeat, "You ran out of lives"
	case s.PlayerLives <= 0 && s.OpponentLives <= 0:
		o := compareScores(s.PlayerScore, s.OpponentScore)
		if o == OutcomeDraw {
			return o, "Both fell together"
		}
		return o, "Score tiebreak"
	case s.PlayerLives > s.OpponentLives:
		return OutcomeVictory, "More lives remaining"
	case s.PlayerLives < s.OpponentLives:
		return OutcomeDefeat, "Fewer lives remaining"
	default:
		return compareScores(s.PlayerScore, s.OpponentScore), "Score"
	}
}

func rewardFor(o Outcome) int {
	switch o {
	case OutcomeVictory:
		return RewardWin
	case OutcomeDefeat:
		return RewardLoss
	default:
		return RewardDraw
	}
}

// accuracyPercent rounds correct/rounds to a whole percentage.
func accuracyPercent(correct, rounds int) int {
	return int(math.Round(float64(correct) / float64(max(1, rounds)) * 100))
}

// ComputeResult compiles the end-of-duel summary.
func ComputeResult(s DuelState, playerName string) Result {
	outcome, reason := decideOutcome(s)
	return Result{
		Outcome:       outcome,
		Reason:        reason,
		PlayerName:    playerName,
		OpponentName:  s.OpponentName,
		PlayerScore:   s.PlayerScore,
		OpponentScore: s.OpponentScore,
		PlayerLives:   s.PlayerLives,
		OpponentLives: s.OpponentLives,
		Rounds:        s.Round,
		Accuracy:      accuracyPercent(s.PlayerCorrect, s.Round),
		BestStreak:    s.PlayerBestStreak,
		Reward:        rewardFor(outcome),
		VsBot:         s.IsBot,
	}
}
