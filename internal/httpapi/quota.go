package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"radiantcore/native/common"
)

// accountQuota throttles per-account borrow requests and volume using
// native/common's quota guard, keyed on the borrowing owner address rather
// than an NHB-denominated cap — here "NHB" becomes native-unit borrow draw.
type accountQuota struct {
	limit common.Quota
	store common.Store
}

// check increments the caller's request and volume counters for the current
// epoch, rejecting with the common package's sentinel errors once either cap
// is exceeded. A zero-value limit (MaxRequestsPerMin == 0 && MaxNHBPerEpoch
// == 0) disables throttling entirely.
func (q *accountQuota) check(ctx context.Context, owner string, amount uint64) error {
	if q == nil || (q.limit.MaxRequestsPerMin == 0 && q.limit.MaxNHBPerEpoch == 0) {
		return nil
	}
	if q.store == nil {
		return nil
	}
	epoch := currentEpoch(q.limit.EpochSeconds)
	_, err := common.Apply(q.store, "lending.borrow", epoch, []byte(owner), q.limit, 1, amount)
	return err
}

func currentEpoch(epochSeconds uint32) uint64 {
	if epochSeconds == 0 {
		epochSeconds = 60
	}
	return uint64(time.Now().Unix()) / uint64(epochSeconds)
}

// memoryQuotaStore is an in-process common.Store, sufficient for a single
// radiantd instance; a multi-instance deployment would back this with the
// same goleveldb family internal/custody and lending/persist use.
type memoryQuotaStore struct {
	mu   sync.Mutex
	data map[string]common.QuotaNow
}

// NewMemoryQuotaStore builds an in-memory common.Store for per-account quota
// counters.
func NewMemoryQuotaStore() common.Store {
	return &memoryQuotaStore{data: make(map[string]common.QuotaNow)}
}

func quotaKey(module string, epoch uint64, addr []byte) string {
	return fmt.Sprintf("%s:%d:%s", module, epoch, addr)
}

func (s *memoryQuotaStore) Load(module string, epoch uint64, addr []byte) (common.QuotaNow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[quotaKey(module, epoch, addr)]
	return v, ok, nil
}

func (s *memoryQuotaStore) Save(module string, epoch uint64, addr []byte, counters common.QuotaNow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[quotaKey(module, epoch, addr)] = counters
	return nil
}
