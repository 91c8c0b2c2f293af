package model

// Relation is the latest close's position relative to the 60-day SMA.
type Relation string

const (
	RelationAbove       Relation = "≥ 60日均线"
	RelationBelow       Relation = "< 60日均线"
	RelationUnavailable Relation = "N/A"
)

// CrossSignal reports whether the close crossed the 60-day SMA on the latest day.
type CrossSignal string

const (
	CrossNone CrossSignal = ""
	CrossUp   CrossSignal = "上穿60日均线"
	CrossDown CrossSignal = "下穿60日均线"
)

// TurnSignal reports a sign flip of the weekly MACD histogram.
// Red is a positive histogram, green a non-positive one.
type TurnSignal string

const (
	TurnNone        TurnSignal = ""
	TurnRedToGreen  TurnSignal = "红转绿"
	TurnGreenToRed  TurnSignal = "绿转红"
	TurnUnavailable TurnSignal = "N/A"
)

// ParseRelation maps a persisted label back to a Relation.
func ParseRelation(s string) Relation {
	switch Relation(s) {
	case RelationAbove, RelationBelow:
		return Relation(s)
	}
	return RelationUnavailable
}

// ParseCross maps a persisted label back to a CrossSignal.
func ParseCross(s string) CrossSignal {
	switch CrossSignal(s) {
	case CrossUp, CrossDown:
		return CrossSignal(s)
	}
	return CrossNone
}

// ParseTurn maps a persisted label back to a TurnSignal.
func ParseTurn(s string) TurnSignal {
	switch TurnSignal(s) {
	case TurnRedToGreen, TurnGreenToRed, TurnUnavailable:
		return TurnSignal(s)
	}
	return TurnNone
}
