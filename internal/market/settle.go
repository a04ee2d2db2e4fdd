package market

// BookEntry is one standing order as it enters settlement, with Quantity
// already clamped to what the seller actually holds.
type BookEntry struct {
	OrderID  int64
	UserID   string
	Quantity int64
	Quote    float64
}

// Fill is the settled portion of one book entry. ProceedsStd is the floored
// std gold actually credited; the fractional remainder is forfeited to the
// pool.
type Fill struct {
	OrderID     int64
	UserID      string
	Requested   int64
	Settled     int64
	Proceeds    float64
	ProceedsStd int64
}

// SettleBook drains the book against the floating pool in insertion order.
//
// A market entry (quote 0) sells unit by unit: each unit is paid the current
// floating/issuance (never below zero) and the pool drops by that unit price,
// so later units in the same tick fetch less. A quoted entry sells only while
// floating/issuance still clears the quote; each settled unit is paid exactly
// the quote and the pool drops by the quote.
//
// Returns the fills with settled amounts, the remaining pool, and the total
// std gold paid out.
func SettleBook(floating float64, issuance int64, book []BookEntry) (fills []Fill, nextFloating float64, totalStd int64) {
	nextFloating = floating
	if issuance <= 0 {
		return nil, nextFloating, 0
	}
	fl := float64(issuance)
	for _, e := range book {
		f := Fill{OrderID: e.OrderID, UserID: e.UserID, Requested: e.Quantity}
		for i := int64(0); i < e.Quantity; i++ {
			unit := nextFloating / fl
			if e.Quote > 0 {
				if unit < e.Quote {
					break
				}
				unit = e.Quote
			} else if unit < 0 {
				unit = 0
			}
			f.Settled++
			f.Proceeds += unit
			nextFloating -= unit
		}
		if f.Settled > 0 {
			f.ProceedsStd = int64(f.Proceeds)
			totalStd += f.ProceedsStd
			fills = append(fills, f)
		}
	}
	return fills, nextFloating, totalStd
}
