package economy

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrNameCollision     = errors.New("name already in use")
	// ErrInvariant marks a programming-defect-class failure. It must abort the
	// enclosing transaction and is never clamped away.
	ErrInvariant = errors.New("ledger invariant violation")
)

// ShortfallError reports a debit that exceeds the available balance. Have is
// the untouched current quantity, which callers surface to the user
// ("you only have N").
type ShortfallError struct {
	ItemID string
	Have   int64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient funds: have %d of %s", e.Have, e.ItemID)
}

func (e *ShortfallError) Is(target error) bool { return target == ErrInsufficientFunds }

// OwnerKind selects which entity a ledger entry is bound to.
type OwnerKind int16

const (
	OwnerUser    OwnerKind = 1
	OwnerAccount OwnerKind = 2
	OwnerGroup   OwnerKind = 3
)

// Owner identifies one side of a ledger entry.
type Owner struct {
	Kind OwnerKind
	ID   string
}

func UserOwner(userID string) Owner   { return Owner{Kind: OwnerUser, ID: userID} }
func GroupOwner(groupID string) Owner { return Owner{Kind: OwnerGroup, ID: groupID} }
func AccountOwner(accountID int64) Owner {
	return Owner{Kind: OwnerAccount, ID: strconv.FormatInt(accountID, 10)}
}

// Counters is the versioned, statically-known per-user counter block. New
// fields get defaults here and a version bump; there is no free-form bag.
type Counters struct {
	Version       int   `json:"version"`
	Win           int64 `json:"win"`
	Loss          int64 `json:"loss"`
	WinStreak     int64 `json:"win_streak"`
	WinStreakMax  int64 `json:"win_streak_max"`
	LoseStreak    int64 `json:"lose_streak"`
	LoseStreakMax int64 `json:"lose_streak_max"`
}

const CountersVersion = 1

func DefaultCounters() Counters { return Counters{Version: CountersVersion} }

// Record tallies one market outcome and maintains the streaks. A win breaks
// the losing streak and vice versa.
func (c *Counters) Record(win bool) {
	if win {
		c.Win++
		c.WinStreak++
		c.LoseStreak = 0
		if c.WinStreak > c.WinStreakMax {
			c.WinStreakMax = c.WinStreak
		}
		return
	}
	c.Loss++
	c.LoseStreak++
	c.WinStreak = 0
	if c.LoseStreak > c.LoseStreakMax {
		c.LoseStreakMax = c.LoseStreak
	}
}

const MailboxDepth = 30

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	Counters  Counters  `json:"counters"`
	Mailbox   []string  `json:"mailbox"`
	CreatedAt time.Time `json:"created_at"`
}

type Group struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	AvatarURL    string     `json:"avatar_url"`
	Level        int64      `json:"level"`
	LastRevoltAt *time.Time `json:"last_revolt_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Account struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	GroupID       string     `json:"group_id"`
	Nickname      string     `json:"nickname"`
	SignInAt      *time.Time `json:"sign_in_at,omitempty"`
	RevoltPending bool       `json:"revolt_pending"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToStdGold converts a local-currency amount into standardized currency. The
// group level is the exchange rate: one local coin is worth level standardized
// coins.
func ToStdGold(local, level int64) int64 {
	if level < 1 {
		level = 1
	}
	return local * level
}

// ToLocalGold converts a standardized amount into local currency, rounding up
// so a positive standardized amount never converts to zero.
func ToLocalGold(std, level int64) int64 {
	if level < 1 {
		level = 1
	}
	return (std + level - 1) / level
}
