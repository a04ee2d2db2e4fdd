package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sarof/internal/config"
)

// Service owns the account-facing economy operations. Every mutating method
// opens one transaction and commits or rolls back as a whole.
type Service struct {
	db      *pgxpool.Pool
	log     *slog.Logger
	catalog *Catalog
	usage   *UsageRegistry
	cfg     config.EconomyConfig

	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewService(db *pgxpool.Pool, cfg config.EconomyConfig, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	catalog, err := NewCatalog(BuiltinItems())
	if err != nil {
		return nil, err
	}
	s := &Service{
		db:      db,
		log:     logger,
		catalog: catalog,
		cfg:     cfg,
		rand:    mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
	s.usage, err = s.buildUsageRegistry()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// LoadSecurities re-registers previously listed securities into the catalog on
// startup so name lookups cover them.
func (s *Service) LoadSecurities(ctx context.Context) error {
	rows, err := s.db.Query(ctx, `SELECT group_id, name FROM market.securities`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var groupID, name string
		if err := rows.Scan(&groupID, &name); err != nil {
			return err
		}
		if _, err := s.catalog.RegisterSecurity(groupID, name); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Service) randInt64(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rand.Int63n(hi-lo+1)
}

func (s *Service) buildUsageRegistry() (*UsageRegistry, error) {
	reg := NewUsageRegistry(s.catalog)

	register := func(id string, fn UsageFunc) error { return reg.Register(id, fn) }

	if err := register(AirID, func(_ context.Context, _ pgx.Tx, _ *Account, _ *Item, count int64, _ string) (string, error) {
		return fmt.Sprintf("you take %d deep breaths. refreshing.", count), nil
	}); err != nil {
		return nil, err
	}

	if err := register(AirPackID, func(_ context.Context, _ pgx.Tx, _ *Account, _ *Item, count int64, _ string) (string, error) {
		return fmt.Sprintf("you open %d air packs. the room feels slightly fuller.", count), nil
	}); err != nil {
		return nil, err
	}

	if err := register(RedPacketID, func(ctx context.Context, tx pgx.Tx, acct *Account, _ *Item, count int64, _ string) (string, error) {
		var total int64
		for i := int64(0); i < count; i++ {
			total += s.randInt64(1, 200)
		}
		if err := Deal(ctx, tx, AccountOwner(acct.ID), GoldID, total); err != nil {
			return "", err
		}
		return fmt.Sprintf("you opened %d red packets and found %d gold", count, total), nil
	}); err != nil {
		return nil, err
	}

	if err := register(GoldPackID, func(ctx context.Context, tx pgx.Tx, acct *Account, _ *Item, count int64, _ string) (string, error) {
		const perPack = 200
		total := count * perPack
		if err := Deal(ctx, tx, UserOwner(acct.UserID), StdGoldID, total); err != nil {
			return "", err
		}
		return fmt.Sprintf("you opened %d gold packs holding %d std gold", count, total), nil
	}); err != nil {
		return nil, err
	}

	return reg, nil
}

// Ensure creates (or refreshes the nickname of) the account binding a user to
// a group.
func (s *Service) Ensure(ctx context.Context, userID, groupID, nickname string) (*Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	acct, err := EnsureAccount(ctx, tx, userID, groupID, nickname)
	if err != nil {
		return nil, err
	}
	return acct, tx.Commit(ctx)
}

// Convert exchanges between the group currency and std gold at the group's
// level. toStd moves account gold out into the user's std ledger; otherwise
// std gold buys account gold at the same rate. Both legs ride one transaction.
func (s *Service) Convert(ctx context.Context, userID, groupID string, toStd bool, n int64) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("amount must be > 0")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	acct, err := EnsureAccount(ctx, tx, userID, groupID, "")
	if err != nil {
		return "", err
	}
	group, err := GetGroup(ctx, tx, groupID, true)
	if err != nil {
		return "", err
	}
	std := ToStdGold(n, group.Level)

	if toStd {
		if err := Deal(ctx, tx, AccountOwner(acct.ID), GoldID, -n); err != nil {
			return "", err
		}
		if err := Deal(ctx, tx, UserOwner(userID), StdGoldID, std); err != nil {
			return "", err
		}
		if err := tx.Commit(ctx); err != nil {
			return "", err
		}
		return fmt.Sprintf("exchanged %d gold for %d std gold", n, std), nil
	}

	if err := Deal(ctx, tx, UserOwner(userID), StdGoldID, -std); err != nil {
		return "", err
	}
	if err := Deal(ctx, tx, AccountOwner(acct.ID), GoldID, n); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("exchanged %d std gold for %d gold", std, n), nil
}

// resolveGroupRef accepts either a raw group id or a listed security name.
func (s *Service) resolveGroupRef(ctx context.Context, tx pgx.Tx, ref string) (string, error) {
	if _, err := GetGroup(ctx, tx, ref, false); err == nil {
		return ref, nil
	}
	if it, ok := s.catalog.ByName(ref); ok && IsSecurityID(it.ID) {
		return strings.TrimPrefix(it.ID, "stock:"), nil
	}
	return "", fmt.Errorf("%w: group or security %q", ErrNotFound, ref)
}

// Transfer moves gold between the same user's accounts in two groups. The
// amount crosses at the ratio of the group levels, flooring on receipt, so a
// round trip can only lose value.
func (s *Service) Transfer(ctx context.Context, userID, fromGroupID, targetRef string, n int64) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("amount must be > 0")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	toGroupID, err := s.resolveGroupRef(ctx, tx, targetRef)
	if err != nil {
		return "", err
	}
	if toGroupID == fromGroupID {
		return "", fmt.Errorf("source and target are the same group")
	}
	from, err := EnsureAccount(ctx, tx, userID, fromGroupID, "")
	if err != nil {
		return "", err
	}
	to, err := EnsureAccount(ctx, tx, userID, toGroupID, "")
	if err != nil {
		return "", err
	}

	// Group rows lock in id order regardless of direction.
	first, second := fromGroupID, toGroupID
	if second < first {
		first, second = second, first
	}
	if _, err := GetGroup(ctx, tx, first, true); err != nil {
		return "", err
	}
	if _, err := GetGroup(ctx, tx, second, true); err != nil {
		return "", err
	}
	fromGroup, err := GetGroup(ctx, tx, fromGroupID, false)
	if err != nil {
		return "", err
	}
	toGroup, err := GetGroup(ctx, tx, toGroupID, false)
	if err != nil {
		return "", err
	}

	std := ToStdGold(n, fromGroup.Level)
	toLevel := toGroup.Level
	if toLevel < 1 {
		toLevel = 1
	}
	received := std / toLevel

	if err := Deal(ctx, tx, AccountOwner(from.ID), GoldID, -n); err != nil {
		return "", err
	}
	if received > 0 {
		if err := Deal(ctx, tx, AccountOwner(to.ID), GoldID, received); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("moved %d gold, %d arrived", n, received), nil
}

// SignInClaim pays out the post-revolution grant once per redistribution
// cycle.
func (s *Service) SignInClaim(ctx context.Context, userID, groupID string) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	acct, err := EnsureAccount(ctx, tx, userID, groupID, "")
	if err != nil {
		return 0, err
	}
	var pending bool
	if err := tx.QueryRow(ctx, `
		SELECT revolt_pending FROM economy.accounts WHERE id = $1 FOR UPDATE
	`, acct.ID).Scan(&pending); err != nil {
		return 0, err
	}
	if !pending {
		return 0, fmt.Errorf("nothing to claim")
	}
	grant := s.randInt64(s.cfg.RevoltGoldMin, s.cfg.RevoltGoldMax)
	if err := Deal(ctx, tx, AccountOwner(acct.ID), GoldID, grant); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE economy.accounts SET revolt_pending = false, sign_in_at = now() WHERE id = $1
	`, acct.ID); err != nil {
		return 0, err
	}
	return grant, tx.Commit(ctx)
}

// UseItem consumes count units of the named item. An unrecognized name (or an
// item with no handler) reports recognized=false and performs nothing.
func (s *Service) UseItem(ctx context.Context, userID, groupID, name string, count int64, arg string) (msg string, recognized bool, err error) {
	item, fn, ok := s.usage.Resolve(name)
	if !ok {
		return "", false, nil
	}
	if count < 1 {
		return "", true, fmt.Errorf("count must be >= 1")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", true, err
	}
	defer tx.Rollback(ctx)

	acct, err := EnsureAccount(ctx, tx, userID, groupID, "")
	if err != nil {
		return "", true, err
	}
	if owner, held := item.OwnerFor(acct); held {
		if err := Deal(ctx, tx, owner, item.ID, -count); err != nil {
			return "", true, err
		}
	}
	msg, err = fn(ctx, tx, acct, item, count, arg)
	if err != nil {
		return "", true, err
	}
	return msg, true, tx.Commit(ctx)
}

// TreasuryMove deposits (deposit=true) or withdraws items between the caller's
// ledger and the group treasury. Permission checks on withdrawals belong to
// the request edge.
func (s *Service) TreasuryMove(ctx context.Context, userID, groupID, itemName string, n int64, deposit bool) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("amount must be > 0")
	}
	item, ok := s.catalog.ByName(itemName)
	if !ok {
		return "", fmt.Errorf("%w: item %q", ErrNotFound, itemName)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	acct, err := EnsureAccount(ctx, tx, userID, groupID, "")
	if err != nil {
		return "", err
	}
	owner, held := item.OwnerFor(acct)
	if !held {
		return "", fmt.Errorf("%s cannot be stored", item.Name)
	}
	from, to := owner, GroupOwner(groupID)
	verb := "deposited"
	if !deposit {
		from, to = to, from
		verb = "withdrew"
	}
	if err := Deal(ctx, tx, from, item.ID, -n); err != nil {
		return "", err
	}
	if err := Deal(ctx, tx, to, item.ID, n); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %d x %s", verb, n, item.Name), nil
}

// Treasury lists the group's holdings by item name.
func (s *Service) Treasury(ctx context.Context, groupID string) (map[string]int64, error) {
	entries, err := OwnerEntries(ctx, s.db, GroupOwner(groupID))
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(entries))
	for id, n := range entries {
		if it, ok := s.catalog.ByID(id); ok {
			out[it.Name] = n
		} else {
			out[id] = n
		}
	}
	return out, nil
}

// Cancel is the explicit player reset for one (user, group) binding.
func (s *Service) Cancel(ctx context.Context, userID, groupID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := DeleteAccount(ctx, tx, userID, groupID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) Inbox(ctx context.Context, userID string) ([]string, error) {
	u, err := GetUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return u.Mailbox, nil
}

func (s *Service) UserCounters(ctx context.Context, userID string) (Counters, error) {
	u, err := GetUser(ctx, s.db, userID)
	if err != nil {
		return Counters{}, err
	}
	return u.Counters, nil
}

// Ranklist resolves an item by display name and returns its top holders.
func (s *Service) Ranklist(ctx context.Context, itemName, groupID string, limit int) ([]RankRow, error) {
	item, ok := s.catalog.ByName(itemName)
	if !ok {
		return nil, fmt.Errorf("%w: item %q", ErrNotFound, itemName)
	}
	return RankByItem(ctx, s.db, item, groupID, limit)
}

// IsExpected reports whether err is a user-facing condition rather than a
// defect: handlers turn these into messages instead of 500s.
func IsExpected(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNameCollision)
}
