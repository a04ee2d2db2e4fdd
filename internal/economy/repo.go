package economy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EnsureUser creates the user row on first reference.
func EnsureUser(ctx context.Context, tx pgx.Tx, userID, name, avatarURL string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO economy.users (id, name, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, userID, name, avatarURL)
	return err
}

func EnsureGroup(ctx context.Context, tx pgx.Tx, groupID, name string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO economy.groups (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, groupID, name)
	return err
}

// EnsureAccount lazily binds a user to a group, creating both sides if needed,
// and returns the account row.
func EnsureAccount(ctx context.Context, tx pgx.Tx, userID, groupID, nickname string) (*Account, error) {
	if err := EnsureUser(ctx, tx, userID, "", ""); err != nil {
		return nil, err
	}
	if err := EnsureGroup(ctx, tx, groupID, ""); err != nil {
		return nil, err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO economy.accounts (user_id, group_id, nickname)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, group_id) DO NOTHING
	`, userID, groupID, nickname)
	if err != nil {
		return nil, err
	}
	if nickname != "" {
		_, err = tx.Exec(ctx, `
			UPDATE economy.accounts SET nickname = $3
			WHERE user_id = $1 AND group_id = $2 AND nickname <> $3
		`, userID, groupID, nickname)
		if err != nil {
			return nil, err
		}
	}
	return GetAccount(ctx, tx, userID, groupID)
}

func GetAccount(ctx context.Context, q DBTX, userID, groupID string) (*Account, error) {
	var a Account
	err := q.QueryRow(ctx, `
		SELECT id, user_id, group_id, nickname, sign_in_at, revolt_pending, created_at
		FROM economy.accounts
		WHERE user_id = $1 AND group_id = $2
	`, userID, groupID).Scan(&a.ID, &a.UserID, &a.GroupID, &a.Nickname, &a.SignInAt, &a.RevoltPending, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s@%s", ErrNotFound, userID, groupID)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAccount is the explicit player reset: the account row goes away and
// its ledger entries with it.
func DeleteAccount(ctx context.Context, tx pgx.Tx, userID, groupID string) error {
	acct, err := GetAccount(ctx, tx, userID, groupID)
	if err != nil {
		return err
	}
	owner := AccountOwner(acct.ID)
	if _, err := tx.Exec(ctx, `
		DELETE FROM economy.ledger WHERE owner_kind = $1 AND owner_id = $2
	`, owner.Kind, owner.ID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM economy.accounts WHERE id = $1`, acct.ID)
	return err
}

// GetGroup loads a group; forUpdate locks the row for the enclosing
// transaction (level reads that feed conversions must lock).
func GetGroup(ctx context.Context, q DBTX, groupID string, forUpdate bool) (*Group, error) {
	query := `
		SELECT id, name, avatar_url, level, last_revolt_at, created_at
		FROM economy.groups
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var g Group
	err := q.QueryRow(ctx, query, groupID).Scan(&g.ID, &g.Name, &g.AvatarURL, &g.Level, &g.LastRevoltAt, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func GetUser(ctx context.Context, q DBTX, userID string) (*User, error) {
	var u User
	var counters, mailbox []byte
	err := q.QueryRow(ctx, `
		SELECT id, name, avatar_url, counters, mailbox, created_at
		FROM economy.users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.AvatarURL, &counters, &mailbox, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	u.Counters = DefaultCounters()
	if err := json.Unmarshal(counters, &u.Counters); err != nil {
		return nil, fmt.Errorf("user %s: decode counters: %w", userID, err)
	}
	if err := json.Unmarshal(mailbox, &u.Mailbox); err != nil {
		return nil, fmt.Errorf("user %s: decode mailbox: %w", userID, err)
	}
	return &u, nil
}

// PostMessage appends to the user's inbox, dropping the oldest entries beyond
// the mailbox depth.
func PostMessage(ctx context.Context, tx pgx.Tx, userID, message string) error {
	_, err := tx.Exec(ctx, `
		UPDATE economy.users u
		SET mailbox = (
			SELECT COALESCE(jsonb_agg(msg ORDER BY ord), '[]'::jsonb)
			FROM (
				SELECT msg, ord
				FROM jsonb_array_elements(u.mailbox || to_jsonb($2::text)) WITH ORDINALITY AS t(msg, ord)
				ORDER BY ord DESC
				LIMIT $3
			) tail
		)
		WHERE u.id = $1
	`, userID, message, MailboxDepth)
	return err
}

// UpdateCounters persists the typed counter block.
func UpdateCounters(ctx context.Context, tx pgx.Tx, userID string, c Counters) error {
	c.Version = CountersVersion
	buf, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE economy.users SET counters = $2 WHERE id = $1`, userID, buf)
	return err
}

// RecordOutcome tallies a win or loss on the user's counters inside the
// caller's transaction.
func RecordOutcome(ctx context.Context, tx pgx.Tx, userID string, win bool) error {
	u, err := GetUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	u.Counters.Record(win)
	return UpdateCounters(ctx, tx, userID, u.Counters)
}

// RankRow is one line of an item ranklist.
type RankRow struct {
	Rank      int64  `json:"rank"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Amount    int64  `json:"amount"`
}

// RankByItem returns the top holders of an item. For local items the scope is
// per-account inside the group; for global items a non-empty groupID restricts
// the board to users holding an account there.
func RankByItem(ctx context.Context, q DBTX, item *Item, groupID string, limit int) ([]RankRow, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows pgx.Rows
	var err error
	switch {
	case item.Scope == ScopeLocal:
		if groupID == "" {
			return nil, fmt.Errorf("%w: local item %s needs a group", ErrNotFound, item.ID)
		}
		rows, err = q.Query(ctx, `
			SELECT a.user_id, a.nickname, u.avatar_url, l.quantity
			FROM economy.ledger l
			JOIN economy.accounts a ON l.owner_kind = $1 AND l.owner_id = a.id::text
			JOIN economy.users u ON u.id = a.user_id
			WHERE a.group_id = $2 AND l.item_id = $3
			ORDER BY l.quantity DESC, a.id
			LIMIT $4
		`, OwnerAccount, groupID, item.ID, limit)
	case groupID != "":
		rows, err = q.Query(ctx, `
			SELECT u.id, u.name, u.avatar_url, l.quantity
			FROM economy.ledger l
			JOIN economy.users u ON l.owner_kind = $1 AND l.owner_id = u.id
			JOIN economy.accounts a ON a.user_id = u.id AND a.group_id = $2
			WHERE l.item_id = $3
			ORDER BY l.quantity DESC, u.id
			LIMIT $4
		`, OwnerUser, groupID, item.ID, limit)
	default:
		rows, err = q.Query(ctx, `
			SELECT u.id, u.name, u.avatar_url, l.quantity
			FROM economy.ledger l
			JOIN economy.users u ON l.owner_kind = $1 AND l.owner_id = u.id
			WHERE l.item_id = $2
			ORDER BY l.quantity DESC, u.id
			LIMIT $3
		`, OwnerUser, item.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RankRow
	rank := int64(1)
	for rows.Next() {
		var r RankRow
		if err := rows.Scan(&r.UserID, &r.Name, &r.AvatarURL, &r.Amount); err != nil {
			return nil, err
		}
		r.Rank = rank
		rank++
		out = append(out, r)
	}
	return out, rows.Err()
}
