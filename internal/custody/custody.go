// Package custody implements lending.Custody as a goleveldb-backed native-unit
// balance ledger, grounded on lending/persist's use of the same
// syndtr/goleveldb store for the engine's own state, so vault and account
// balances live in the same storage family as markets/reserves/obligations.
package custody

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"

	"radiantcore/lending"
)

// Ledger is a goleveldb-backed lending.Custody. All transfers are guarded by
// an in-process mutex, matching the single-writer assumption the engine's
// own EngineState implementation makes within one radiantd process.
type Ledger struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (creating if absent) a goleveldb ledger database at dir.
func Open(dir string) (*Ledger, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("custody: open %s: %w", dir, err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

func balanceKey(account string) []byte { return []byte("balance:" + account) }

func (l *Ledger) getBalance(account string) (uint64, error) {
	data, err := l.db.Get(balanceKey(account), nil)
	if errors.ErrNotFound == err {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("custody: corrupt balance record for %s", account)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (l *Ledger) putBalance(batch *leveldb.Batch, account string, balance uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, balance)
	batch.Put(balanceKey(account), buf)
}

// Credit directly increases account's balance without a matching debit, the
// entry point an external deposit/settlement system uses to fund a vault or
// a borrower's wallet (not part of lending.Custody; used by test/seed
// tooling; the HTTP API exposes no route that calls it).
func (l *Ledger) Credit(ctx context.Context, account string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.getBalance(account)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	l.putBalance(batch, account, balance+amount)
	return l.db.Write(batch, nil)
}

// Transfer implements lending.Custody: move amount native units from `from`
// to `to`, failing if `from`'s balance is insufficient. The authority
// argument is accepted for interface compatibility but unused by this
// single-process ledger, which trusts the engine's own authorization checks.
func (l *Ledger) Transfer(ctx context.Context, from, to, authority string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBalance, err := l.getBalance(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: %s holds %d, requested %d", lending.ErrLiquidityInsufficient, from, fromBalance, amount)
	}
	toBalance, err := l.getBalance(to)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	l.putBalance(batch, from, fromBalance-amount)
	l.putBalance(batch, to, toBalance+amount)
	return l.db.Write(batch, nil)
}

// Balance implements lending.Custody.
func (l *Ledger) Balance(ctx context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getBalance(account)
}

var _ lending.Custody = (*Ledger)(nil)
