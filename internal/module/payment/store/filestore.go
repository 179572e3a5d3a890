package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blogauto/server/internal/module/payment/domain"
)

const indexName = "index.log"

// indexEntry is one line of the append-only index keeping List from
// scanning the whole directory.
type indexEntry struct {
	File      string    `json:"file"`
	WrittenAt time.Time `json:"written_at"`
}

// FileStore keeps one JSON document per transaction, keyed by
// (provider, transactionID, timestamp) so follow-up records for the
// same transaction id never collide. Writes to distinct keys do not
// contend; only the index append is serialized.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex // guards index appends
}

// NewFileStore opens (or creates) the transaction directory.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transaction dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, txn *domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%s_%s.json",
		txn.Provider,
		sanitize(txn.TransactionID),
		time.Now().UTC().Format("20060102T150405.000000000"),
	)

	data, err := json.MarshalIndent(txn, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}

	// Each record is a self-contained unit: write to a temp file and
	// rename so a crashed write never leaves a half-built record.
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write transaction: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace transaction: %w", err)
	}

	if err := s.appendIndex(name); err != nil {
		// The record itself is durable; a stale index only degrades
		// List to the directory-scan fallback.
		s.logger.Warn("transaction index append failed",
			zap.String("file", name), zap.Error(err))
	}

	s.logger.Info("transaction saved",
		zap.String("provider", string(txn.Provider)),
		zap.String("transaction_id", txn.TransactionID),
		zap.String("status", string(txn.Status)),
	)
	return nil
}

func (s *FileStore) appendIndex(name string) error {
	line, err := json.Marshal(indexEntry{File: name, WrittenAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, indexName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	names, err := s.indexedNames()
	if err != nil {
		s.logger.Warn("transaction index unreadable, scanning directory", zap.Error(err))
		names, err = s.scannedNames()
		if err != nil {
			return nil, err
		}
	}

	txns := make([]*domain.Transaction, 0, limit)
	// Newest first: the index is append-ordered, so walk it backwards.
	for i := len(names) - 1; i >= 0 && len(txns) < limit; i-- {
		txn, err := s.read(names[i])
		if err != nil {
			s.logger.Warn("skipping unreadable transaction record",
				zap.String("file", names[i]), zap.Error(err))
			continue
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func (s *FileStore) read(name string) (*domain.Transaction, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	var txn domain.Transaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return &txn, nil
}

func (s *FileStore) indexedNames() ([]string, error) {
	f, err := os.Open(filepath.Join(s.dir, indexName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry indexEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		names = append(names, entry.File)
	}
	return names, scanner.Err()
}

// scannedNames is the recovery path when the index is missing or
// corrupt: order by modification time, oldest first.
func (s *FileStore) scannedNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan transaction dir: %w", err)
	}

	type fileInfo struct {
		name string
		mod  time.Time
	}
	infos := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{name: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mod.Before(infos[j].mod) })

	names := make([]string, len(infos))
	for i, fi := range infos {
		names[i] = fi.name
	}
	return names, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
}
