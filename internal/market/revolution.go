package market

import (
	"context"
	"fmt"
	"time"

	"sarof/internal/economy"
)

// RevolutionSweep checks every group; only the ones past their thresholds
// actually fire.
func (s *Service) RevolutionSweep(ctx context.Context) {
	rows, err := s.db.Query(ctx, `SELECT id FROM economy.groups ORDER BY id`)
	if err != nil {
		s.log.Error("revolution sweep: load groups", "error", err)
		return
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.log.Error("revolution sweep: scan group id", "error", err)
			return
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		report, err := s.Revolution(ctx, id, false)
		if err != nil {
			s.log.Error("revolution failed", "group", id, "error", err)
			continue
		}
		if report.Fired {
			s.log.Info("revolution fired", "group", id, "gini", report.Gini, "level", report.Level)
		}
	}
}

// GiniReport computes the concentration numbers for a group without touching
// anything.
func (s *Service) GiniReport(ctx context.Context, groupID string) (*RevolutionReport, error) {
	group, err := economy.GetGroup(ctx, s.db, groupID, false)
	if err != nil {
		return nil, err
	}
	sample, err := economy.GroupWealthSample(ctx, s.db, groupID, economy.GoldID, s.cfg.GiniFilterGold)
	if err != nil {
		return nil, err
	}
	report := &RevolutionReport{GroupID: groupID, Level: group.Level}
	amounts := make([]int64, len(sample))
	for i, w := range sample {
		amounts[i] = w.Amount
		report.Total += w.Amount
	}
	report.Gini = GiniCoefficient(amounts)
	return report, nil
}

// Revolution runs the wealth-concentration check for one group and, past the
// thresholds, redistributes: the top ten holders are cut down by rank, the
// richest is wiped and compensated with a marker, the local currency
// revalues one level up, and every member earns a fresh sign-in grant.
// force skips the thresholds and the cooldown, not the mechanics.
func (s *Service) Revolution(ctx context.Context, groupID string, force bool) (*RevolutionReport, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	group, err := economy.GetGroup(ctx, tx, groupID, true)
	if err != nil {
		return nil, err
	}
	report := &RevolutionReport{GroupID: groupID, Level: group.Level}

	if !force && group.LastRevoltAt != nil && time.Since(*group.LastRevoltAt) < s.cfg.RevoltCooldown {
		report.Reason = "cooldown"
		return report, tx.Commit(ctx)
	}

	sample, err := economy.GroupWealthSample(ctx, tx, groupID, economy.GoldID, s.cfg.GiniFilterGold)
	if err != nil {
		return nil, err
	}
	amounts := make([]int64, len(sample))
	for i, w := range sample {
		amounts[i] = w.Amount
		report.Total += w.Amount
	}
	report.Gini = GiniCoefficient(amounts)

	if !force {
		if report.Total < s.cfg.RevoltMinGold {
			report.Reason = "below wealth minimum"
			return report, tx.Commit(ctx)
		}
		if report.Gini < s.cfg.RevoltGini {
			report.Reason = "below gini threshold"
			return report, tx.Commit(ctx)
		}
	}
	if len(sample) == 0 {
		report.Reason = "no holders"
		return report, tx.Commit(ctx)
	}

	top := sample
	if len(top) > 10 {
		top = top[:10]
	}
	for rank, w := range top {
		kept := RankHaircut(w.Amount, rank)
		if delta := kept - w.Amount; delta != 0 {
			if err := economy.Deal(ctx, tx, economy.AccountOwner(w.AccountID), economy.GoldID, delta); err != nil {
				return nil, err
			}
		}
	}
	richest := sample[0]
	if err := economy.Deal(ctx, tx, economy.UserOwner(richest.UserID), economy.RevolutionMarkerID, 1); err != nil {
		return nil, err
	}

	// The local currency revalues: scale the treasury's local holdings so
	// their standardized worth survives the level bump.
	treasury := economy.GroupOwner(groupID)
	entries, err := economy.OwnerEntries(ctx, tx, treasury)
	if err != nil {
		return nil, err
	}
	for itemID, qty := range entries {
		it, ok := s.eco.Catalog().ByID(itemID)
		if !ok || it.Scope != economy.ScopeLocal {
			continue
		}
		scaled := qty * group.Level / (group.Level + 1)
		if delta := scaled - qty; delta != 0 {
			if err := economy.Deal(ctx, tx, treasury, itemID, delta); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE economy.groups SET level = level + 1, last_revolt_at = now() WHERE id = $1
	`, groupID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE economy.accounts SET revolt_pending = true WHERE group_id = $1
	`, groupID); err != nil {
		return nil, err
	}
	topIDs := make([]int64, len(top))
	for i, w := range top {
		topIDs[i] = w.AccountID
	}
	if _, err := tx.Exec(ctx, `
		UPDATE economy.accounts SET revolt_pending = false WHERE id = ANY($1)
	`, topIDs); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("the revolution came for you: %d gold seized, one marker granted", richest.Amount)
	if err := economy.PostMessage(ctx, tx, richest.UserID, msg); err != nil {
		return nil, err
	}

	report.Fired = true
	report.Level = group.Level + 1
	return report, tx.Commit(ctx)
}
