package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
)

const (
	docPrefix         = "doc:"
	docIDSeq          = "docseq"
	sequenceBandwidth = 100
)

// record is the stored form of a document.
type record struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Vector   []float32         `json:"vector"`
}

// Store is a badger-backed Collection bound to one embedder. Each Store
// is a fresh handle with its own session id; the directory lock means
// at most one live handle per knowledge base directory.
type Store struct {
	db       *badger.DB
	seq      *badger.Sequence
	embedder embeddings.Embedder
	session  string
	logger   *slog.Logger
}

var _ Collection = (*Store)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens the store at dir, creating the directory if needed. A
// contended directory lock surfaces as ErrStoreLocked.
func Open(dir string, embedder embeddings.Embedder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "directory lock") {
			return nil, fmt.Errorf("%w: %s", ErrStoreLocked, dir)
		}
		return nil, fmt.Errorf("open store: %w", err)
	}

	seq, err := db.GetSequence([]byte(docIDSeq), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sequence: %w", err)
	}

	session := uuid.NewString()
	logger.Debug("vector store opened", "dir", dir, "session", session)

	return &Store{
		db:       db,
		seq:      seq,
		embedder: embedder,
		session:  session,
		logger:   logger,
	}, nil
}

// Session returns the handle's session id.
func (s *Store) Session() string {
	return s.session
}

// Close releases the sequence and closes the database, freeing the
// directory lock.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("release sequence", "error", err)
	}
	return s.db.Close()
}

// Add embeds the documents and writes them in one transaction.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(docs))
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for i, doc := range docs {
			id, err := s.seq.Next()
			if err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}
			val, err := json.Marshal(record{
				Text:     doc.Text,
				Metadata: doc.Metadata,
				Vector:   vectors[i],
			})
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			if err := txn.Set(makeDocKey(id), val); err != nil {
				return fmt.Errorf("set record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("documents added", "count", len(docs), "session", s.session)
	return nil
}

// Get returns documents in insertion order, filtered by opts. Total is
// the match count before Offset and Limit are applied.
func (s *Store) Get(ctx context.Context, opts GetOptions) (GetResult, error) {
	var result GetResult

	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(docPrefix)
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()

		search := strings.ToLower(opts.ContainsText)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := iter.Item()
			var rec record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("read record: %w", err)
			}

			if !matchesWhere(rec.Metadata, opts.Where) {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(rec.Text), search) {
				continue
			}

			result.Total++
			if result.Total <= opts.Offset {
				continue
			}
			if opts.Limit > 0 && len(result.Documents) >= opts.Limit {
				continue
			}
			result.Documents = append(result.Documents, Document{
				ID:       string(item.KeyCopy(nil)),
				Text:     rec.Text,
				Metadata: rec.Metadata,
			})
		}
		return nil
	})
	if err != nil {
		return GetResult{}, err
	}
	return result, nil
}

// DeleteWhere removes all documents whose metadata matches every pair
// in filter. Deletes go through a write batch so large rollbacks do not
// exceed transaction limits.
func (s *Store) DeleteWhere(ctx context.Context, filter map[string]string) (int, error) {
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(docPrefix)
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := iter.Item()
			var rec record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("read record: %w", err)
			}
			if matchesWhere(rec.Metadata, filter) {
				keys = append(keys, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete record: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}

	s.logger.Debug("documents deleted", "count", len(keys), "filter", filter, "session", s.session)
	return len(keys), nil
}

// Count returns the number of stored documents. Values are not
// prefetched; only keys are walked.
func (s *Store) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(docPrefix)
		iterOpts.PrefetchValues = false
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// makeDocKey formats a sequence id as a fixed-width key so iteration
// order matches insertion order.
func makeDocKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", docPrefix, id))
}

func matchesWhere(metadata, where map[string]string) bool {
	for k, v := range where {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
