package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"constantProduct/internal/model"
)

type snapshotRecord struct {
	Pools     []model.Pool    `json:"pools"`
	Balances  []balanceRecord `json:"balances"`
	UpdatedAt string          `json:"updated_at"`
}

type balanceRecord struct {
	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
	Amount  uint64         `json:"amount,string"`
}

// SnapshotStore persists the full backend state to a JSON file.
type SnapshotStore struct {
	path string
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

func (s *SnapshotStore) Load() (map[common.Hash]model.Pool, map[balanceKey]uint64, bool, error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return nil, nil, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, false, fmt.Errorf("parse snapshot: %w", err)
	}

	pools := make(map[common.Hash]model.Pool, len(rec.Pools))
	for _, pool := range rec.Pools {
		pools[pool.Key()] = pool
	}
	balances := make(map[balanceKey]uint64, len(rec.Balances))
	for _, b := range rec.Balances {
		if b.Amount == 0 {
			continue
		}
		balances[balanceKey{Asset: b.Asset, Account: b.Account}] = b.Amount
	}
	return pools, balances, true, nil
}

func (s *SnapshotStore) Save(pools map[common.Hash]model.Pool, balances map[balanceKey]uint64) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	rec := snapshotRecord{
		Pools:     make([]model.Pool, 0, len(pools)),
		Balances:  make([]balanceRecord, 0, len(balances)),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, pool := range pools {
		rec.Pools = append(rec.Pools, pool)
	}
	sort.Slice(rec.Pools, func(i, j int) bool {
		ki, kj := rec.Pools[i].Key(), rec.Pools[j].Key()
		return bytes.Compare(ki.Bytes(), kj.Bytes()) < 0
	})
	for key, amount := range balances {
		rec.Balances = append(rec.Balances, balanceRecord{Asset: key.Asset, Account: key.Account, Amount: amount})
	}
	sort.Slice(rec.Balances, func(i, j int) bool {
		a, b := rec.Balances[i], rec.Balances[j]
		if c := bytes.Compare(a.Asset.Bytes(), b.Asset.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Account.Bytes(), b.Account.Bytes()) < 0
	})

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
