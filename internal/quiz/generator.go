// Package quiz produces arithmetic questions scaled by grade and difficulty.
package quiz

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/utils"
)

type Operator string

const (
	OpAdd      Operator = "+"
	OpSubtract Operator = "-"
	OpMultiply Operator = "×"
	OpDivide   Operator = "÷"
)

// Level is one row of the grade/difficulty table.
type Level struct {
	Max       int
	Operators []Operator
}

var (
	plusMinus = []Operator{OpAdd, OpSubtract}
	withTimes = []Operator{OpAdd, OpSubtract, OpMultiply}
	allFour   = []Operator{OpAdd, OpSubtract, OpMultiply, OpDivide}
)

var levels = map[int]map[internal.Difficulty]Level{
	8: {
		internal.DifficultyEasy:      {Max: 20, Operators: plusMinus},
		internal.DifficultyMedium:    {Max: 40, Operators: plusMinus},
		internal.DifficultyHard:      {Max: 60, Operators: withTimes},
		internal.DifficultyChallenge: {Max: 80, Operators: withTimes},
	},
	9: {
		internal.DifficultyEasy:      {Max: 25, Operators: plusMinus},
		internal.DifficultyMedium:    {Max: 60, Operators: withTimes},
		internal.DifficultyHard:      {Max: 90, Operators: allFour},
		internal.DifficultyChallenge: {Max: 120, Operators: allFour},
	},
	10: {
		internal.DifficultyEasy:      {Max: 30, Operators: plusMinus},
		internal.DifficultyMedium:    {Max: 80, Operators: allFour},
		internal.DifficultyHard:      {Max: 140, Operators: allFour},
		internal.DifficultyChallenge: {Max: 200, Operators: allFour},
	},
}

// LevelFor resolves the table row. Grades other than 8 and 9 use the grade 10
// row; unknown difficulties use the grade's medium row.
func LevelFor(difficulty internal.Difficulty, grade int) Level {
	rows, ok := levels[grade]
	if !ok {
		rows = levels[10]
	}
	if lvl, ok := rows[difficulty]; ok {
		return lvl
	}
	return rows[internal.DifficultyMedium]
}

// ParseGrade reads the leading integer of a grade string ("9th" is 9).
// A string without digits, or grade 0, yields 8.
func ParseGrade(grade string) int {
	s := strings.TrimSpace(grade)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 8
	}
	g, err := strconv.Atoi(s[:end])
	if err != nil || g == 0 {
		return 8
	}
	return g
}

// DifficultyForRound maps a 1-based round number onto the difficulty ramp.
func DifficultyForRound(round int) internal.Difficulty {
	switch {
	case round <= 5:
		return internal.DifficultyEasy
	case round <= 15:
		return internal.DifficultyMedium
	case round <= 30:
		return internal.DifficultyHard
	default:
		return internal.DifficultyChallenge
	}
}

// Generator is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = utils.NewRand()
	}
	return &Generator{rng: rng}
}

func (g *Generator) Generate(difficulty internal.Difficulty, grade int) internal.Question {
	lvl := LevelFor(difficulty, grade)
	op := lvl.Operators[g.rng.Intn(len(lvl.Operators))]

	var a, b, answer int
	switch op {
	case OpAdd:
		a = utils.RandInt(g.rng, 1, lvl.Max)
		b = utils.RandInt(g.rng, 1, lvl.Max)
		answer = a + b
	case OpSubtract:
		a = utils.RandInt(g.rng, 1, lvl.Max)
		b = utils.RandInt(g.rng, 1, a)
		answer = a - b
	case OpMultiply:
		a = utils.RandInt(g.rng, 2, lvl.Max/2)
		b = utils.RandInt(g.rng, 2, lvl.Max/2)
		answer = a * b
	case OpDivide:
		b = utils.RandInt(g.rng, 2, 12)
		answer = utils.RandInt(g.rng, 1, lvl.Max/b)
		a = b * answer
	}

	return internal.Question{
		Text:   fmt.Sprintf("%d %s %d = ?", a, op, b),
		Answer: answer,
	}
}
