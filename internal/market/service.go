package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sarof/internal/config"
	"sarof/internal/economy"
)

var (
	ErrNotListed   = errors.New("security not listed")
	ErrBadName     = errors.New("invalid security name")
	ErrStaleToken  = errors.New("confirmation expired or unknown")
	ErrWrongCaller = errors.New("confirmation belongs to another user")
)

// Service owns everything on the market side: listing, purchases, standing
// orders, the tick, and the redistribution sweep.
type Service struct {
	db       *pgxpool.Pool
	log      *slog.Logger
	eco      *economy.Service
	cfg      config.EconomyConfig
	confirms *ConfirmStore

	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewService(db *pgxpool.Pool, eco *economy.Service, cfg config.EconomyConfig, confirmWindow time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		log:      logger,
		eco:      eco,
		cfg:      cfg,
		confirms: NewConfirmStore(confirmWindow),
		rand:     mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) normFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.NormFloat64()
}

func (s *Service) uniFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()*2 - 1
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 32 {
		return fmt.Errorf("%w: must be 1-32 characters", ErrBadName)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control characters", ErrBadName)
		}
	}
	return nil
}

func (s *Service) securityByGroup(ctx context.Context, q economy.DBTX, groupID string, forUpdate bool) (*Security, error) {
	query := `SELECT ` + securityColumns + ` FROM market.securities WHERE group_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var sec Security
	err := q.QueryRow(ctx, query, groupID).
		Scan(&sec.ID, &sec.GroupID, &sec.Name, &sec.Issuance, &sec.Value, &sec.Floating, &sec.ListedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: group %s", ErrNotListed, groupID)
	}
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

// securityByName resolves a display name through the shared catalog so item
// names and security names stay one namespace.
func (s *Service) securityByName(ctx context.Context, q economy.DBTX, name string, forUpdate bool) (*Security, error) {
	it, ok := s.eco.Catalog().ByName(strings.TrimSpace(name))
	if !ok || !economy.IsSecurityID(it.ID) {
		return nil, fmt.Errorf("%w: %q", ErrNotListed, name)
	}
	return s.securityByGroup(ctx, q, strings.TrimPrefix(it.ID, "stock:"), forUpdate)
}

// revalue recomputes the security's book value from the issuing community's
// live balances and persists it. Runs inside the caller's transaction with the
// security row already locked.
func (s *Service) revalue(ctx context.Context, tx economy.DBTX, sec *Security, level int64) error {
	memberGold, err := economy.GroupMemberSum(ctx, tx, sec.GroupID, economy.GoldID)
	if err != nil {
		return err
	}
	treasuryStd, err := economy.Balance(ctx, tx, economy.GroupOwner(sec.GroupID), economy.StdGoldID)
	if err != nil {
		return err
	}
	sec.Value = Valuation(memberGold, level, treasuryStd)
	_, err = tx.Exec(ctx, `UPDATE market.securities SET value = $2 WHERE id = $1`, sec.ID, sec.Value)
	return err
}

// List proposes listing the group's security, or renaming it if one already
// exists. A rename returns a confirmation token; a fresh listing applies
// immediately and returns the new security.
func (s *Service) List(ctx context.Context, userID, groupID, name string) (sec *Security, token string, err error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, "", err
	}
	if it, ok := s.eco.Catalog().ByName(name); ok {
		if it.ID == economy.SecurityItemID(groupID) {
			return nil, "", fmt.Errorf("%w: already named %q", economy.ErrNameCollision, name)
		}
		return nil, "", fmt.Errorf("%w: %q", economy.ErrNameCollision, name)
	}

	listed := true
	if _, err := s.securityByGroup(ctx, s.db, groupID, false); err != nil {
		if !errors.Is(err, ErrNotListed) {
			return nil, "", err
		}
		listed = false
	}
	if listed {
		token = s.confirms.Put(Pending{UserID: userID, GroupID: groupID, Name: name, Rename: true})
		return nil, token, nil
	}

	sec, err = s.list(ctx, userID, groupID, name)
	return sec, "", err
}

// Confirm applies a pending rename. Late or repeated confirmations fail
// without touching state.
func (s *Service) Confirm(ctx context.Context, userID, token string) (*Security, error) {
	p, ok := s.confirms.Take(token)
	if !ok {
		return nil, ErrStaleToken
	}
	if p.UserID != userID {
		return nil, ErrWrongCaller
	}
	if err := validateName(p.Name); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sec, err := s.securityByGroup(ctx, tx, p.GroupID, true)
	if err != nil {
		return nil, err
	}
	if it, ok := s.eco.Catalog().ByName(p.Name); ok && it.ID != sec.ID {
		return nil, fmt.Errorf("%w: %q", economy.ErrNameCollision, p.Name)
	}
	if _, err := tx.Exec(ctx, `UPDATE market.securities SET name = $2 WHERE id = $1`, sec.ID, p.Name); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	// The catalog mirrors committed state only; a rolled-back rename must
	// never leave a phantom name behind.
	if _, err := s.eco.Catalog().RegisterSecurity(p.GroupID, p.Name); err != nil {
		s.log.Error("catalog rename lagging committed row", "group", p.GroupID, "name", p.Name, "error", err)
	}
	sec.Name = p.Name
	return sec, nil
}

// list performs the initial public offering. The whole treasury gold balance
// becomes paid-in capital: it is zeroed, re-credited as std gold, and the
// group receives the full issuance of its new security. The valuation also
// counts the members' circulating gold so the listing price reflects the
// community, not just its treasury.
func (s *Service) list(ctx context.Context, userID, groupID, name string) (*Security, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := economy.EnsureAccount(ctx, tx, userID, groupID, ""); err != nil {
		return nil, err
	}
	group, err := economy.GetGroup(ctx, tx, groupID, true)
	if err != nil {
		return nil, err
	}
	treasury := economy.GroupOwner(groupID)
	paidIn, err := economy.Balance(ctx, tx, treasury, economy.GoldID)
	if err != nil {
		return nil, err
	}
	if paidIn < s.cfg.ListingMinGold {
		return nil, &economy.ShortfallError{ItemID: economy.GoldID, Have: paidIn}
	}
	memberGold, err := economy.GroupMemberSum(ctx, tx, groupID, economy.GoldID)
	if err != nil {
		return nil, err
	}

	capital := economy.ToStdGold(paidIn, group.Level)
	issuance := capital
	value := Valuation(memberGold, group.Level, capital)

	if err := economy.Deal(ctx, tx, treasury, economy.GoldID, -paidIn); err != nil {
		return nil, err
	}
	if err := economy.Deal(ctx, tx, treasury, economy.StdGoldID, capital); err != nil {
		return nil, err
	}

	stockID := economy.SecurityItemID(groupID)
	sec := &Security{
		ID:       stockID,
		GroupID:  groupID,
		Name:     name,
		Issuance: issuance,
		Value:    value,
		Floating: float64(value),
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO market.securities (id, group_id, name, issuance, value, floating)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING listed_at
	`, sec.ID, sec.GroupID, sec.Name, sec.Issuance, sec.Value, sec.Floating).Scan(&sec.ListedAt)
	if err != nil {
		return nil, err
	}
	if err := economy.Deal(ctx, tx, treasury, stockID, issuance); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if _, err := s.eco.Catalog().RegisterSecurity(groupID, name); err != nil {
		s.log.Error("catalog listing lagging committed row", "group", groupID, "name", name, "error", err)
	}
	s.log.Info("security listed",
		"group", groupID, "name", name, "issuance", issuance, "value", value)
	return sec, nil
}

// Buy purchases units from the issuing group's float. Each unit is priced at
// max(floating, value)/issuance and inflates the pool, so big buys push their
// own price up. limit caps the per-unit price (0 for none). The spend is taken
// std gold first, the remainder converted from the buyer's local gold at their
// group's rate.
func (s *Service) Buy(ctx context.Context, userID, groupID, securityName string, units int64, limit float64) (*BuyReport, error) {
	if units <= 0 {
		return nil, fmt.Errorf("units must be > 0")
	}
	if limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	acct, err := economy.EnsureAccount(ctx, tx, userID, groupID, "")
	if err != nil {
		return nil, err
	}
	buyerGroup, err := economy.GetGroup(ctx, tx, groupID, true)
	if err != nil {
		return nil, err
	}
	sec, err := s.securityByName(ctx, tx, securityName, true)
	if err != nil {
		return nil, err
	}
	issuerGroup, err := economy.GetGroup(ctx, tx, sec.GroupID, true)
	if err != nil {
		return nil, err
	}
	if err := s.revalue(ctx, tx, sec, issuerGroup.Level); err != nil {
		return nil, err
	}
	issuerTreasury := economy.GroupOwner(sec.GroupID)
	available, err := economy.Balance(ctx, tx, issuerTreasury, sec.ID)
	if err != nil {
		return nil, err
	}
	haveStd, err := economy.Balance(ctx, tx, economy.UserOwner(userID), economy.StdGoldID)
	if err != nil {
		return nil, err
	}
	haveGold, err := economy.Balance(ctx, tx, economy.AccountOwner(acct.ID), economy.GoldID)
	if err != nil {
		return nil, err
	}
	spendCap := float64(haveStd + economy.ToStdGold(haveGold, buyerGroup.Level))

	report := &BuyReport{Security: sec.Name}
	var cost, floating float64
	report.Units, cost, floating, report.Stopped = planPurchase(
		sec.Floating, sec.Value, sec.Issuance, available, units, spendCap, limit)
	if report.Units == 0 {
		return report, tx.Commit(ctx)
	}
	report.CostStd = int64(math.Ceil(cost))

	stdPart := report.CostStd
	if stdPart > haveStd {
		stdPart = haveStd
	}
	if stdPart > 0 {
		if err := economy.Deal(ctx, tx, economy.UserOwner(userID), economy.StdGoldID, -stdPart); err != nil {
			return nil, err
		}
	}
	if rest := report.CostStd - stdPart; rest > 0 {
		local := economy.ToLocalGold(rest, buyerGroup.Level)
		if err := economy.Deal(ctx, tx, economy.AccountOwner(acct.ID), economy.GoldID, -local); err != nil {
			return nil, err
		}
	}
	if err := economy.Deal(ctx, tx, issuerTreasury, sec.ID, -report.Units); err != nil {
		return nil, err
	}
	if err := economy.Deal(ctx, tx, economy.UserOwner(userID), sec.ID, report.Units); err != nil {
		return nil, err
	}
	proceeds := economy.ToLocalGold(report.CostStd, issuerGroup.Level)
	if err := economy.Deal(ctx, tx, issuerTreasury, economy.GoldID, proceeds); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE market.securities SET floating = $2 WHERE id = $1
	`, sec.ID, floating); err != nil {
		return nil, err
	}
	return report, tx.Commit(ctx)
}

// RegisterOrder upserts the caller's standing sell order for one security.
// A quantity below 1, or no holdings at all, removes the registration.
func (s *Service) RegisterOrder(ctx context.Context, userID, securityName string, quantity int64, quote float64) (*Order, error) {
	if quote < 0 {
		return nil, fmt.Errorf("quote must be >= 0")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sec, err := s.securityByName(ctx, tx, securityName, false)
	if err != nil {
		return nil, err
	}
	held, err := economy.Balance(ctx, tx, economy.UserOwner(userID), sec.ID)
	if err != nil {
		return nil, err
	}
	if quantity < 1 || held == 0 {
		if _, err := tx.Exec(ctx, `
			DELETE FROM market.orders WHERE security_id = $1 AND user_id = $2
		`, sec.ID, userID); err != nil {
			return nil, err
		}
		return nil, tx.Commit(ctx)
	}

	var ord Order
	ord.SecurityID = sec.ID
	ord.UserID = userID
	err = tx.QueryRow(ctx, `
		INSERT INTO market.orders (security_id, user_id, quantity, quote)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (security_id, user_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, quote = EXCLUDED.quote, created_at = now()
		RETURNING id, quantity, quote, created_at
	`, sec.ID, userID, quantity, quote).Scan(&ord.ID, &ord.Quantity, &ord.Quote, &ord.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ord, tx.Commit(ctx)
}

// Securities returns the whole board.
func (s *Service) Securities(ctx context.Context) ([]Security, error) {
	rows, err := s.db.Query(ctx, `SELECT `+securityColumns+` FROM market.securities ORDER BY listed_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Security
	for rows.Next() {
		var sec Security
		if err := rows.Scan(&sec.ID, &sec.GroupID, &sec.Name, &sec.Issuance, &sec.Value, &sec.Floating, &sec.ListedAt); err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// History returns up to limit samples, oldest first.
func (s *Service) History(ctx context.Context, securityName string, limit int) ([]PricePoint, error) {
	if limit <= 0 || limit > HistoryDepth {
		limit = HistoryDepth
	}
	sec, err := s.securityByName(ctx, s.db, securityName, false)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT tick_at, unit_price FROM market.price_history
		WHERE security_id = $1
		ORDER BY tick_at DESC
		LIMIT $2
	`, sec.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.TickAt, &p.Price); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
