package model

// FeeUnknown is the fee text used when a fund's fee could not be obtained.
const FeeUnknown = "N/A"

// IndicatorRow is one persisted record: one instrument on one trading day.
type IndicatorRow struct {
	Date          string
	Code          string
	Name          string
	ManagementFee string
	CustodyFee    string
	LatestClose   Value
	SMA60         Value
	Relation      Relation
	Cross         CrossSignal
	DIF           Value
	DEA           Value
	Hist          Value
	Turn          TurnSignal
}

// NewIndicatorRow assembles a row from an instrument's computed indicators.
func NewIndicatorRow(date, code, name, mgmtFee, custodyFee string, ind Indicators) IndicatorRow {
	return IndicatorRow{
		Date:          date,
		Code:          code,
		Name:          name,
		ManagementFee: mgmtFee,
		CustodyFee:    custodyFee,
		LatestClose:   ind.MA.LatestClose,
		SMA60:         ind.MA.SMA,
		Relation:      ind.MA.Relation,
		Cross:         ind.MA.Cross,
		DIF:           ind.MACD.DIF,
		DEA:           ind.MACD.DEA,
		Hist:          ind.MACD.Hist,
		Turn:          ind.MACD.Turn,
	}
}

// Snapshot is the set of rows produced by one pipeline run.
// Rows may carry different dates when an upstream lags; AsOf is the nominal date.
type Snapshot struct {
	AsOf       string
	Rows       []IndicatorRow
	Total      int
	Failed     []string
	FeeUnknown int
}

// Covered returns the number of instruments that produced a row.
func (s *Snapshot) Covered() int {
	return len(s.Rows)
}

// Dates returns the distinct row dates in first-seen order.
func (s *Snapshot) Dates() []string {
	seen := make(map[string]bool)
	var dates []string
	for _, r := range s.Rows {
		if !seen[r.Date] {
			seen[r.Date] = true
			dates = append(dates, r.Date)
		}
	}
	return dates
}
