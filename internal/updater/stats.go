package updater

import "ETFQuant/internal/model"

// Stats are the signal counts across a snapshot.
type Stats struct {
	Above           int
	Below           int
	NoRelation      int
	CrossUp         int
	CrossDown       int
	MACDRed         int
	MACDGreen       int
	RedToGreen      int
	GreenToRed      int
	MACDUnavailable int
}

// ComputeStats tallies relation, cross and MACD signals. A histogram above zero is red.
func ComputeStats(rows []model.IndicatorRow) Stats {
	var s Stats
	for _, r := range rows {
		switch r.Relation {
		case model.RelationAbove:
			s.Above++
		case model.RelationBelow:
			s.Below++
		default:
			s.NoRelation++
		}
		switch r.Cross {
		case model.CrossUp:
			s.CrossUp++
		case model.CrossDown:
			s.CrossDown++
		}
		switch {
		case !r.Hist.Valid:
			s.MACDUnavailable++
		case r.Hist.Float > 0:
			s.MACDRed++
		default:
			s.MACDGreen++
		}
		switch r.Turn {
		case model.TurnRedToGreen:
			s.RedToGreen++
		case model.TurnGreenToRed:
			s.GreenToRed++
		}
	}
	return s
}
