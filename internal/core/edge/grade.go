package edge

// Result of grading one settled market.
type Result string

const (
	ResultWin  Result = "WIN"
	ResultLoss Result = "LOSS"
	ResultPush Result = "PUSH"
)

// GradeSpread settles a bet laid on the favorite at the given spread
// (negative for the favorite). The favorite covers iff its score plus
// the spread still beats the underdog; equality is a push.
func GradeSpread(favoriteScore, underdogScore int, spread float64) Result {
	adjusted := float64(favoriteScore) + spread
	switch {
	case adjusted > float64(underdogScore):
		return ResultWin
	case adjusted < float64(underdogScore):
		return ResultLoss
	default:
		return ResultPush
	}
}

// GradeTotal settles an OVER or UNDER bet against the final combined
// score. Landing exactly on the line is a push.
func GradeTotal(homeScore, awayScore int, line float64, side string) Result {
	sum := float64(homeScore + awayScore)
	if sum == line {
		return ResultPush
	}
	over := sum > line
	if (side == "OVER") == over {
		return ResultWin
	}
	return ResultLoss
}

// GradeMoneyline settles a moneyline bet on the picked team. A tie is a
// push (possible in NFL regular season).
func GradeMoneyline(pickedScore, otherScore int) Result {
	switch {
	case pickedScore > otherScore:
		return ResultWin
	case pickedScore < otherScore:
		return ResultLoss
	default:
		return ResultPush
	}
}
