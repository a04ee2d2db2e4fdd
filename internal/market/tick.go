package market

import (
	"context"
	"fmt"
	"math"

	"sarof/internal/economy"
)

// RunTick advances every listed security one step. Each security settles in
// its own transaction; a failure is logged and the rest of the board still
// ticks.
func (s *Service) RunTick(ctx context.Context) []TickReport {
	rows, err := s.db.Query(ctx, `SELECT id FROM market.securities ORDER BY listed_at`)
	if err != nil {
		s.log.Error("tick: load securities", "error", err)
		return nil
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.log.Error("tick: scan security id", "error", err)
			return nil
		}
		ids = append(ids, id)
	}
	rows.Close()

	var reports []TickReport
	for _, id := range ids {
		report, err := s.tickSecurity(ctx, id)
		if err != nil {
			s.log.Error("tick: security failed", "security", id, "error", err)
			continue
		}
		reports = append(reports, *report)
	}
	return reports
}

func (s *Service) tickSecurity(ctx context.Context, securityID string) (*TickReport, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var sec Security
	err = tx.QueryRow(ctx, `
		SELECT `+securityColumns+` FROM market.securities WHERE id = $1 FOR UPDATE
	`, securityID).Scan(&sec.ID, &sec.GroupID, &sec.Name, &sec.Issuance, &sec.Value, &sec.Floating, &sec.ListedAt)
	if err != nil {
		return nil, err
	}

	group, err := economy.GetGroup(ctx, tx, sec.GroupID, true)
	if err != nil {
		return nil, err
	}
	if err := s.revalue(ctx, tx, &sec, group.Level); err != nil {
		return nil, err
	}

	// Cold start: a fresh or degenerate pool is seeded at the valuation and
	// sits the tick out.
	if sec.Floating <= 0 || math.IsNaN(sec.Floating) {
		sec.Floating = float64(sec.Value)
		if err := s.finishTick(ctx, tx, &sec); err != nil {
			return nil, err
		}
		return &TickReport{SecurityID: sec.ID, Floating: sec.Floating}, tx.Commit(ctx)
	}

	oldFloating := sec.Floating
	floating := PriceStep(sec.Floating, float64(sec.Value), s.normFloat()*TrendStdDev, s.uniFloat()*DispersionRange)

	// Float income rides the walk itself, before anything settles against
	// the pool.
	treasury := economy.GroupOwner(sec.GroupID)
	bal, err := economy.Balance(ctx, tx, treasury, economy.GoldID)
	if err != nil {
		return nil, err
	}
	if delta := FloatIncome(bal, oldFloating, floating); delta != 0 {
		if err := economy.Deal(ctx, tx, treasury, economy.GoldID, delta); err != nil {
			return nil, err
		}
	}

	book, err := s.loadBook(ctx, tx, &sec)
	if err != nil {
		return nil, err
	}
	fills, floating, totalStd := SettleBook(floating, sec.Issuance, book)

	for _, f := range fills {
		seller := economy.UserOwner(f.UserID)
		if err := economy.Deal(ctx, tx, seller, sec.ID, -f.Settled); err != nil {
			return nil, err
		}
		if err := economy.Deal(ctx, tx, treasury, sec.ID, f.Settled); err != nil {
			return nil, err
		}
		if f.ProceedsStd > 0 {
			if err := economy.Deal(ctx, tx, seller, economy.StdGoldID, f.ProceedsStd); err != nil {
				return nil, err
			}
		}
		if err := s.settleOrderRow(ctx, tx, f); err != nil {
			return nil, err
		}
		if err := economy.RecordOutcome(ctx, tx, f.UserID, f.ProceedsStd > 0); err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("sold %d %s for %d std gold", f.Settled, sec.Name, f.ProceedsStd)
		if err := economy.PostMessage(ctx, tx, f.UserID, msg); err != nil {
			return nil, err
		}
	}

	// The issuer treasury covers the payout in its own currency, but the
	// ledger floor wins: it pays at most what it holds.
	if totalStd > 0 {
		owed := treasuryOwed(totalStd, group.Level)
		bal, err := economy.Balance(ctx, tx, treasury, economy.GoldID)
		if err != nil {
			return nil, err
		}
		if owed > bal {
			owed = bal
		}
		if owed > 0 {
			if err := economy.Deal(ctx, tx, treasury, economy.GoldID, -owed); err != nil {
				return nil, err
			}
		}
	}

	sec.Floating = floating
	if err := s.finishTick(ctx, tx, &sec); err != nil {
		return nil, err
	}
	report := &TickReport{SecurityID: sec.ID, Floating: floating, Fills: fills, TotalStd: totalStd}
	return report, tx.Commit(ctx)
}

// ResetFloating re-anchors the whole board: every security's book value is
// recomputed and its pool seeded back to it. Operator tooling for a market
// that has drifted somewhere useless.
func (s *Service) ResetFloating(ctx context.Context) []TickReport {
	rows, err := s.db.Query(ctx, `SELECT id FROM market.securities ORDER BY listed_at`)
	if err != nil {
		s.log.Error("reset floating: load securities", "error", err)
		return nil
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.log.Error("reset floating: scan security id", "error", err)
			return nil
		}
		ids = append(ids, id)
	}
	rows.Close()

	var reports []TickReport
	for _, id := range ids {
		report, err := s.resetSecurity(ctx, id)
		if err != nil {
			s.log.Error("reset floating failed", "security", id, "error", err)
			continue
		}
		reports = append(reports, *report)
	}
	return reports
}

func (s *Service) resetSecurity(ctx context.Context, securityID string) (*TickReport, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var sec Security
	err = tx.QueryRow(ctx, `
		SELECT `+securityColumns+` FROM market.securities WHERE id = $1 FOR UPDATE
	`, securityID).Scan(&sec.ID, &sec.GroupID, &sec.Name, &sec.Issuance, &sec.Value, &sec.Floating, &sec.ListedAt)
	if err != nil {
		return nil, err
	}
	group, err := economy.GetGroup(ctx, tx, sec.GroupID, true)
	if err != nil {
		return nil, err
	}
	if err := s.revalue(ctx, tx, &sec, group.Level); err != nil {
		return nil, err
	}
	sec.Floating = float64(sec.Value)
	if err := s.finishTick(ctx, tx, &sec); err != nil {
		return nil, err
	}
	return &TickReport{SecurityID: sec.ID, Floating: sec.Floating}, tx.Commit(ctx)
}

// loadBook pulls the standing orders in registration order, clamping each to
// what the seller still holds. Holdings can shrink between registration and
// the tick; the order stays but only the held amount settles.
func (s *Service) loadBook(ctx context.Context, tx economy.DBTX, sec *Security) ([]BookEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, user_id, quantity, quote
		FROM market.orders
		WHERE security_id = $1
		ORDER BY id
	`, sec.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var book []BookEntry
	for rows.Next() {
		var e BookEntry
		if err := rows.Scan(&e.OrderID, &e.UserID, &e.Quantity, &e.Quote); err != nil {
			return nil, err
		}
		book = append(book, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range book {
		held, err := economy.Balance(ctx, tx, economy.UserOwner(book[i].UserID), sec.ID)
		if err != nil {
			return nil, err
		}
		if book[i].Quantity > held {
			book[i].Quantity = held
		}
	}
	return book, nil
}

// settleOrderRow shrinks or removes the order row behind a fill. The delete
// runs first so a fully drained row never trips the positive-quantity check.
func (s *Service) settleOrderRow(ctx context.Context, tx economy.DBTX, f Fill) error {
	tag, err := tx.Exec(ctx, `
		DELETE FROM market.orders WHERE id = $1 AND quantity <= $2
	`, f.OrderID, f.Settled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
			UPDATE market.orders SET quantity = quantity - $2 WHERE id = $1
		`, f.OrderID, f.Settled)
	}
	return err
}

// finishTick persists the pool and appends the history sample, pruning the
// window.
func (s *Service) finishTick(ctx context.Context, tx economy.DBTX, sec *Security) error {
	if _, err := tx.Exec(ctx, `
		UPDATE market.securities SET floating = $2 WHERE id = $1
	`, sec.ID, sec.Floating); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO market.price_history (security_id, tick_at, unit_price)
		VALUES ($1, now(), $2)
		ON CONFLICT (security_id, tick_at) DO UPDATE SET unit_price = EXCLUDED.unit_price
	`, sec.ID, sec.Spot()); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		DELETE FROM market.price_history
		WHERE security_id = $1 AND tick_at NOT IN (
			SELECT tick_at FROM market.price_history
			WHERE security_id = $1
			ORDER BY tick_at DESC
			LIMIT $2
		)
	`, sec.ID, HistoryDepth)
	return err
}
