package economy

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Scope controls which ledger a balance of the item lives in.
type Scope int8

const (
	// ScopeNone marks flavour items that persist nowhere in particular.
	ScopeNone Scope = 0
	// ScopeLocal balances are bound to a (user, community) account.
	ScopeLocal Scope = 1
	// ScopeGlobal balances follow the user across communities.
	ScopeGlobal Scope = 2
)

type Permanence int8

const (
	Consumable Permanence = 0
	Permanent  Permanence = 1
)

const (
	itemIDPrefix  = "item:"
	stockIDPrefix = "stock:"
)

// Item is an immutable catalog definition. For item: ids the rarity, scope and
// permanence are encoded in the id digits and validated at registration;
// stock: ids are exempt (they are minted at listing time).
type Item struct {
	ID         string
	Name       string
	Rarity     int
	Scope      Scope
	Permanence Permanence
	Number     int
	Color      string
	Intro      string
}

// ParseItemID decodes an "item:RSTN..." id: rarity digit, scope digit,
// permanence digit, then the catalog number.
func ParseItemID(id string) (rarity int, scope Scope, perm Permanence, number int, err error) {
	digits, ok := strings.CutPrefix(id, itemIDPrefix)
	if !ok || len(digits) < 4 {
		return 0, 0, 0, 0, fmt.Errorf("item id %q must be item:<rarity><scope><permanence><number>", id)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, 0, 0, 0, fmt.Errorf("item id %q contains a non-digit", id)
		}
	}
	rarity = int(digits[0] - '0')
	scope = Scope(digits[1] - '0')
	perm = Permanence(digits[2] - '0')
	if scope > ScopeGlobal {
		return 0, 0, 0, 0, fmt.Errorf("item id %q: scope digit out of range", id)
	}
	if perm > Permanent {
		return 0, 0, 0, 0, fmt.Errorf("item id %q: permanence digit out of range", id)
	}
	number, err = strconv.Atoi(digits[3:])
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("item id %q: bad number: %w", id, err)
	}
	return rarity, scope, perm, number, nil
}

// IsSecurityID reports whether the id belongs to a listed security rather than
// a static catalog item.
func IsSecurityID(id string) bool { return strings.HasPrefix(id, stockIDPrefix) }

// SecurityItemID builds the catalog id for a community's listed security.
func SecurityItemID(groupID string) string { return stockIDPrefix + groupID }

// OwnerFor resolves which ledger owner holds this item for the given account.
// Local items bind to the account, global items to the user. ScopeNone items
// have no ledger at all.
func (it *Item) OwnerFor(acct *Account) (Owner, bool) {
	switch it.Scope {
	case ScopeLocal:
		return AccountOwner(acct.ID), true
	case ScopeGlobal:
		return UserOwner(acct.UserID), true
	default:
		return Owner{}, false
	}
}

// Catalog is the item registry. It is built once at startup and read-only
// afterwards, except that listed securities are registered into it at listing
// time (the only runtime mutation, guarded by the mutex).
type Catalog struct {
	mu     sync.RWMutex
	byID   map[string]*Item
	byName map[string]*Item
}

func NewCatalog(items []Item) (*Catalog, error) {
	c := &Catalog{
		byID:   make(map[string]*Item, len(items)),
		byName: make(map[string]*Item, len(items)),
	}
	for i := range items {
		it := items[i]
		rarity, scope, perm, number, err := ParseItemID(it.ID)
		if err != nil {
			return nil, err
		}
		if rarity != it.Rarity || scope != it.Scope || perm != it.Permanence || number != it.Number {
			return nil, fmt.Errorf("item %q: declared fields disagree with id encoding", it.ID)
		}
		if err := c.register(&it); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) register(it *Item) error {
	if _, dup := c.byID[it.ID]; dup {
		return fmt.Errorf("duplicate item id %q", it.ID)
	}
	if _, dup := c.byName[it.Name]; dup {
		return fmt.Errorf("%w: item name %q", ErrNameCollision, it.Name)
	}
	c.byID[it.ID] = it
	c.byName[it.Name] = it
	return nil
}

// RegisterSecurity adds a listed security to the catalog as a global permanent
// item so the ledger and treasury paths treat holdings like any other balance.
func (c *Catalog) RegisterSecurity(groupID, name string) (*Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := &Item{
		ID:         SecurityItemID(groupID),
		Name:       name,
		Rarity:     5,
		Scope:      ScopeGlobal,
		Permanence: Permanent,
		Intro:      "listed security",
	}
	if old, ok := c.byID[it.ID]; ok {
		// Rename path: same security, new display name.
		if _, dup := c.byName[name]; dup && c.byName[name] != old {
			return nil, fmt.Errorf("%w: %q", ErrNameCollision, name)
		}
		delete(c.byName, old.Name)
		old.Name = name
		c.byName[name] = old
		return old, nil
	}
	if err := c.register(it); err != nil {
		return nil, err
	}
	return it, nil
}

func (c *Catalog) ByID(id string) (*Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.byID[id]
	return it, ok
}

func (c *Catalog) ByName(name string) (*Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.byName[name]
	return it, ok
}

// Well-known item ids. GOLD is the community-scoped currency, STD_GOLD the
// standardized one; the revolution marker is the badge granted to the top
// holder when a redistribution fires.
const (
	GoldID             = "item:11101"
	StdGoldID          = "item:12102"
	RevolutionMarkerID = "item:62103"
	AirID              = "item:00004"
	AirPackID          = "item:11005"
	RedPacketID        = "item:21006"
	GoldPackID         = "item:32007"
)

// BuiltinItems is the static seed catalog.
func BuiltinItems() []Item {
	return []Item{
		{ID: GoldID, Name: "gold", Rarity: 1, Scope: ScopeLocal, Permanence: Permanent, Number: 1,
			Color: "gold", Intro: "community currency"},
		{ID: StdGoldID, Name: "std gold", Rarity: 1, Scope: ScopeGlobal, Permanence: Permanent, Number: 2,
			Color: "gold", Intro: "standardized currency accepted everywhere"},
		{ID: RevolutionMarkerID, Name: "revolution marker", Rarity: 6, Scope: ScopeGlobal, Permanence: Permanent, Number: 3,
			Color: "red", Intro: "badge of the last one standing on top"},
		{ID: AirID, Name: "air", Rarity: 0, Scope: ScopeNone, Permanence: Consumable, Number: 4,
			Intro: "it's air"},
		{ID: AirPackID, Name: "air pack", Rarity: 1, Scope: ScopeLocal, Permanence: Consumable, Number: 5,
			Intro: "opens into a generous amount of air"},
		{ID: RedPacketID, Name: "random red packet", Rarity: 2, Scope: ScopeLocal, Permanence: Consumable, Number: 6,
			Color: "red", Intro: "a random amount of gold"},
		{ID: GoldPackID, Name: "gold pack", Rarity: 3, Scope: ScopeGlobal, Permanence: Consumable, Number: 7,
			Color: "gold", Intro: "a fixed purse of std gold"},
	}
}
