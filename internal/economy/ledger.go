package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx. Read helpers accept it;
// every mutation takes an explicit pgx.Tx so the caller owns the commit
// boundary.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ledgerOp is the storage action a balance change resolves to.
type ledgerOp int

const (
	opNone ledgerOp = iota
	opInsert
	opUpdate
	opDelete
)

// resolveDelta decides what applying delta to a balance does, without touching
// storage. A debit past the balance returns *ShortfallError carrying the
// untouched quantity; a result of exactly zero deletes the row; any path that
// would store a negative quantity is ErrInvariant.
func resolveDelta(itemID string, have, delta int64) (next int64, op ledgerOp, err error) {
	if delta < 0 && have < -delta {
		return have, opNone, &ShortfallError{ItemID: itemID, Have: have}
	}
	next = have + delta
	switch {
	case next < 0:
		return have, opNone, fmt.Errorf("%w: %s would go to %d", ErrInvariant, itemID, next)
	case next == 0:
		if have == 0 {
			return 0, opNone, nil
		}
		return 0, opDelete, nil
	case have == 0:
		return next, opInsert, nil
	default:
		return next, opUpdate, nil
	}
}

// Deal applies delta to the owner's balance of one item. It is the single
// choke point for balance changes. Inserts and deletes are staged on tx; the
// caller decides commit/rollback so multi-item moves stay all-or-nothing.
func Deal(ctx context.Context, tx pgx.Tx, owner Owner, itemID string, delta int64) error {
	var have int64
	err := tx.QueryRow(ctx, `
		SELECT quantity
		FROM economy.ledger
		WHERE owner_kind = $1 AND owner_id = $2 AND item_id = $3
		FOR UPDATE
	`, owner.Kind, owner.ID, itemID).Scan(&have)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	next, op, err := resolveDelta(itemID, have, delta)
	if err != nil {
		return err
	}
	switch op {
	case opDelete:
		_, err = tx.Exec(ctx, `
			DELETE FROM economy.ledger
			WHERE owner_kind = $1 AND owner_id = $2 AND item_id = $3
		`, owner.Kind, owner.ID, itemID)
	case opInsert:
		_, err = tx.Exec(ctx, `
			INSERT INTO economy.ledger (owner_kind, owner_id, item_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, owner.Kind, owner.ID, itemID, next)
	case opUpdate:
		_, err = tx.Exec(ctx, `
			UPDATE economy.ledger
			SET quantity = $4, updated_at = now()
			WHERE owner_kind = $1 AND owner_id = $2 AND item_id = $3
		`, owner.Kind, owner.ID, itemID, next)
	}
	return err
}

// Balance reads a quantity; absent rows read as zero.
func Balance(ctx context.Context, q DBTX, owner Owner, itemID string) (int64, error) {
	var n int64
	err := q.QueryRow(ctx, `
		SELECT quantity
		FROM economy.ledger
		WHERE owner_kind = $1 AND owner_id = $2 AND item_id = $3
	`, owner.Kind, owner.ID, itemID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// OwnerEntries lists everything an owner holds.
func OwnerEntries(ctx context.Context, q DBTX, owner Owner) (map[string]int64, error) {
	rows, err := q.Query(ctx, `
		SELECT item_id, quantity
		FROM economy.ledger
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY item_id
	`, owner.Kind, owner.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var itemID string
		var n int64
		if err := rows.Scan(&itemID, &n); err != nil {
			return nil, err
		}
		out[itemID] = n
	}
	return out, rows.Err()
}

// GroupMemberSum totals one item over every account ledger in a group.
func GroupMemberSum(ctx context.Context, q DBTX, groupID, itemID string) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.quantity), 0)
		FROM economy.ledger l
		JOIN economy.accounts a ON l.owner_kind = $1 AND l.owner_id = a.id::text
		WHERE a.group_id = $2 AND l.item_id = $3
	`, OwnerAccount, groupID, itemID).Scan(&sum)
	return sum, err
}

// AccountWealth is one account's balance of an item, used for gini sampling
// and redistribution.
type AccountWealth struct {
	AccountID int64
	UserID    string
	Nickname  string
	Amount    int64
}

// GroupWealthSample returns per-account balances of an item above the noise
// floor, richest first with account id as the tie-break so the ordering is
// deterministic.
func GroupWealthSample(ctx context.Context, q DBTX, groupID, itemID string, floor int64) ([]AccountWealth, error) {
	rows, err := q.Query(ctx, `
		SELECT a.id, a.user_id, a.nickname, l.quantity
		FROM economy.ledger l
		JOIN economy.accounts a ON l.owner_kind = $1 AND l.owner_id = a.id::text
		WHERE a.group_id = $2 AND l.item_id = $3 AND l.quantity > $4
		ORDER BY l.quantity DESC, a.id
	`, OwnerAccount, groupID, itemID, floor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountWealth
	for rows.Next() {
		var w AccountWealth
		if err := rows.Scan(&w.AccountID, &w.UserID, &w.Nickname, &w.Amount); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
