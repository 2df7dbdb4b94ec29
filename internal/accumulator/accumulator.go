// Package accumulator is the correctness kernel: it maintains the
// append-only balances, allowances, and total-supply projections by
// reading the most recent row for a natural key, computing a new value
// under a key-scoped critical section, and appending the result. A
// database uniqueness constraint on (natural_key, block_number, log_index)
// makes a crash-replayed insert a no-op instead of a duplicate.
package accumulator

import (
	"math/big"
	"strings"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/histori/evm-token-indexer/internal/catalog"
	"github.com/histori/evm-token-indexer/internal/errs"
	"github.com/histori/evm-token-indexer/internal/store"
)

// Service applies deltas and set-semantics writes to the three
// projections.
type Service struct {
	db   *gorm.DB
	lock *KeyLock
}

func New(db *gorm.DB) *Service {
	return &Service{db: db, lock: &KeyLock{}}
}

// ApplyBalanceDelta appends a new balances row for (holder, address,
// tokenID) equal to max(0, previous ± delta).
func (s *Service) ApplyBalanceDelta(holder, address string, tokenID *string, delta Delta, standard catalog.Standard, blockNumber uint64, logIndex uint32) error {
	key := naturalKey("balance", holder, address, tokenIDOrEmpty(tokenID))
	unlock := s.lock.Lock(key)
	defer unlock()

	prev, err := s.latestBalance(holder, address, tokenID)
	if err != nil {
		return err
	}
	next := delta.apply(prev)

	row := store.BalanceRow{
		Holder:      holder,
		Address:     address,
		TokenID:     tokenIDOrEmpty(tokenID),
		Balance:     next.String(),
		Standard:    standard.String(),
		BlockNumber: blockNumber,
		LogIndex:    logIndex,
	}
	return s.insertIdempotent(&row)
}

// ApplyAllowanceDelta appends a new allowances row equal to max(0,
// previous ± delta). Used only for the fungible ERC-20 Approval routing
// rule ("set(owner,spender) += value"), which despite the "set" wording in
// the routing table is specified as additive.
func (s *Service) ApplyAllowanceDelta(owner, spender, address string, tokenID *string, delta Delta, standard catalog.Standard, blockNumber uint64, logIndex uint32) error {
	key := naturalKey("allowance", owner, spender, address, tokenIDOrEmpty(tokenID))
	unlock := s.lock.Lock(key)
	defer unlock()

	prev, err := s.latestAllowance(owner, spender, address, tokenID)
	if err != nil {
		return err
	}
	next := delta.apply(prev)

	row := store.AllowanceRow{
		Owner:       owner,
		Spender:     spender,
		Address:     address,
		TokenID:     tokenIDOrEmpty(tokenID),
		Allowance:   next.String(),
		Standard:    standard.String(),
		BlockNumber: blockNumber,
		LogIndex:    logIndex,
	}
	return s.insertIdempotent(&row)
}

// SetAllowance appends an allowances row with an exact value (0 or 1),
// never computed from a previous row. This is the set-semantics path used
// by ApprovalForAll, AuthorizedOperator/RevokedOperator, and per-token-id
// NFT Approval.
func (s *Service) SetAllowance(owner, spender, address string, tokenID *string, value int64, standard catalog.Standard, blockNumber uint64, logIndex uint32) error {
	key := naturalKey("allowance", owner, spender, address, tokenIDOrEmpty(tokenID))
	unlock := s.lock.Lock(key)
	defer unlock()

	row := store.AllowanceRow{
		Owner:       owner,
		Spender:     spender,
		Address:     address,
		TokenID:     tokenIDOrEmpty(tokenID),
		Allowance:   big.NewInt(value).String(),
		Standard:    standard.String(),
		BlockNumber: blockNumber,
		LogIndex:    logIndex,
	}
	return s.insertIdempotent(&row)
}

// ApplySupplyDelta appends a new token_supplies row equal to max(0,
// previous ± delta).
func (s *Service) ApplySupplyDelta(address string, delta Delta, blockNumber uint64, logIndex uint32) error {
	key := naturalKey("supply", address)
	unlock := s.lock.Lock(key)
	defer unlock()

	prev, err := s.latestSupply(address)
	if err != nil {
		return err
	}
	next := delta.apply(prev)

	row := store.SupplyRow{
		Address:     address,
		TotalSupply: next.String(),
		BlockNumber: blockNumber,
		LogIndex:    logIndex,
	}
	return s.insertIdempotent(&row)
}

func (s *Service) latestBalance(holder, address string, tokenID *string) (*big.Int, error) {
	var row store.BalanceRow
	q := s.db.Where("holder = ? AND address = ?", holder, address)
	q = whereTokenID(q, tokenID)
	err := q.Order("block_number DESC, log_index DESC, id DESC").First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindDBTransient, err, "accumulator: read latest balance")
	}
	return parseStoredAmount(row.Balance)
}

func (s *Service) latestAllowance(owner, spender, address string, tokenID *string) (*big.Int, error) {
	var row store.AllowanceRow
	q := s.db.Where("owner = ? AND spender = ? AND address = ?", owner, spender, address)
	q = whereTokenID(q, tokenID)
	err := q.Order("block_number DESC, log_index DESC, id DESC").First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindDBTransient, err, "accumulator: read latest allowance")
	}
	return parseStoredAmount(row.Allowance)
}

func (s *Service) latestSupply(address string) (*big.Int, error) {
	var row store.SupplyRow
	err := s.db.Where("address = ?", address).Order("block_number DESC, log_index DESC, id DESC").First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindDBTransient, err, "accumulator: read latest supply")
	}
	return parseStoredAmount(row.TotalSupply)
}

// whereTokenID matches the not-null token_id column, using the same
// empty-string sentinel for "no token id" that rows are written with — a
// plain equality comparison, never "IS NULL", since NULL is never equal to
// itself and would silently match nothing.
func whereTokenID(q *gorm.DB, tokenID *string) *gorm.DB {
	return q.Where("token_id = ?", tokenIDOrEmpty(tokenID))
}

func parseStoredAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errs.New(errs.KindDecode, "accumulator: corrupt stored decimal amount")
	}
	return v, nil
}

// insertIdempotent appends row, treating a uniqueness violation as success:
// a replayed insert for a (key, block_number, log_index) already on disk
// is exactly the crash-recovery scenario the schema's unique index exists
// for, not a real error.
func (s *Service) insertIdempotent(row interface{}) error {
	err := s.db.Create(row).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return nil
	}
	return errs.Wrap(errs.KindDBTransient, err, "accumulator: insert")
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(errors.Cause(err).Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func tokenIDOrEmpty(tokenID *string) string {
	if tokenID == nil {
		return ""
	}
	return *tokenID
}

func naturalKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}
