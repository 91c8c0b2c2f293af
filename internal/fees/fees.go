// Package fees looks up and caches each fund's annual management and custody fee rates.
package fees

import (
	"context"

	"ETFQuant/internal/model"
)

// Fees is the pair of annual fee rates shown on a fund's profile page, e.g. "0.50%".
type Fees struct {
	Management string `json:"management"`
	Custody    string `json:"custody"`
}

// Unknown is used when a fund's fees could not be determined.
var Unknown = Fees{Management: model.FeeUnknown, Custody: model.FeeUnknown}

// IsUnknown reports whether neither rate is known.
func (f Fees) IsUnknown() bool {
	return f.Management == model.FeeUnknown && f.Custody == model.FeeUnknown
}

// Source fetches fees for a single fund. A page without the fields yields Unknown and no error;
// errors are reserved for transport failures.
type Source interface {
	LookupFees(ctx context.Context, code string) (Fees, error)
}
