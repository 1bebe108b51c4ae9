package element

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/element/attr"
	"github.com/artstore/artstore/pkg/element/cache"
	"github.com/artstore/artstore/pkg/element/store"
	"github.com/artstore/artstore/pkg/element/wal"
)

// RecoveryReport summarizes what startup recovery did with the non-terminal
// WAL entries it found.
type RecoveryReport struct {
	Scanned    int `json:"scanned"`
	Committed  int `json:"committed"`
	RolledBack int `json:"rolled_back"`
	Cleaned    int `json:"cleaned"`
}

// Recover resolves every non-terminal WAL entry left by a crash. A data
// object without its sidecar was never advertised and is removed. A data
// object whose sidecar parses and whose bytes hash to the recorded checksum
// completed all durable steps, so the entry is committed and the cache row
// restored. Everything else is compensated.
func (s *Service) Recover(ctx context.Context) (RecoveryReport, error) {
	entries, err := s.wal.NonTerminal(ctx)
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("scan non-terminal transactions: %w", err)
	}

	var report RecoveryReport
	report.Scanned = len(entries)
	for i := range entries {
		entry := &entries[i]
		resolution, err := s.recoverEntry(ctx, entry)
		if err != nil {
			return report, fmt.Errorf("recover transaction %s: %w", entry.TransactionID, err)
		}
		switch resolution {
		case "committed":
			report.Committed++
		case "cleaned":
			report.Cleaned++
		default:
			report.RolledBack++
		}
		if s.walm != nil {
			s.walm.ObserveRecovery(resolution)
		}
	}

	if report.Scanned > 0 {
		logger.InfoCtx(ctx, "WAL recovery finished",
			"scanned", report.Scanned,
			"committed", report.Committed,
			"rolled_back", report.RolledBack,
			"cleaned", report.Cleaned)
	}
	return report, nil
}

func (s *Service) recoverEntry(ctx context.Context, entry *wal.Entry) (string, error) {
	dataPath, attrPath, err := s.entryPaths(entry)
	if err != nil {
		// Without paths there is nothing on disk to reconcile.
		if err := s.wal.RollBack(ctx, entry.TransactionID, "recovery: "+err.Error()); err != nil {
			return "", err
		}
		return "rolled_back", nil
	}

	dataPresent := s.objectExists(ctx, dataPath)
	attrPresent := s.objectExists(ctx, attrPath)

	switch {
	case dataPresent && !attrPresent:
		// The sidecar never landed, so the file was never advertised.
		if err := s.backend.Delete(ctx, dataPath); err != nil {
			return "", fmt.Errorf("remove orphan data object: %w", err)
		}
		if err := s.wal.RollBack(ctx, entry.TransactionID, "recovery: data object without sidecar"); err != nil {
			return "", err
		}
		logger.WarnCtx(ctx, "Recovery removed data object without sidecar",
			logger.TransactionID(entry.TransactionID), logger.Path(dataPath))
		return "cleaned", nil

	case dataPresent && attrPresent:
		attrs, ok := s.verifyCommitted(ctx, dataPath, attrPath)
		if ok {
			if err := s.cache.Upsert(ctx, cache.FromAttributes(attrs)); err != nil {
				return "", fmt.Errorf("restore cache row: %w", err)
			}
			if err := s.wal.MarkCommitted(ctx, entry.TransactionID); err != nil {
				return "", err
			}
			logger.InfoCtx(ctx, "Recovery committed interrupted transaction",
				logger.TransactionID(entry.TransactionID), logger.FileID(attrs.FileID))
			return "committed", nil
		}
		fallthrough

	default:
		if err := s.compensate(ctx, entry, dataPath, attrPath); err != nil {
			return "", err
		}
		return "rolled_back", nil
	}
}

// entryPaths extracts the object paths a transaction touched, preferring the
// compensation record and falling back to the payload.
func (s *Service) entryPaths(entry *wal.Entry) (dataPath, attrPath string, err error) {
	comp, err := entry.CompensationData()
	if err == nil && comp.DataPath != "" {
		return comp.DataPath, comp.AttrPath, nil
	}

	var payload uploadPayload
	if entry.Payload != "" {
		if perr := json.Unmarshal([]byte(entry.Payload), &payload); perr == nil &&
			payload.StoragePath != "" && payload.StorageFilename != "" {
			dataPath = payload.StoragePath + "/" + payload.StorageFilename
			return dataPath, payload.StoragePath + "/" + AttrFilename(payload.StorageFilename), nil
		}
	}
	return "", "", errors.New("transaction records no object paths")
}

func (s *Service) objectExists(ctx context.Context, relPath string) bool {
	if relPath == "" {
		return false
	}
	_, err := s.backend.Stat(ctx, relPath)
	return err == nil
}

// verifyCommitted reports whether the sidecar parses and the data object
// hashes to the checksum it records.
func (s *Service) verifyCommitted(ctx context.Context, dataPath, attrPath string) (*attr.Attributes, bool) {
	doc, err := s.backend.ReadAttr(ctx, attrPath)
	if err != nil {
		return nil, false
	}
	attrs, err := attr.Unmarshal(doc)
	if err != nil {
		logger.WarnCtx(ctx, "Recovery found unparseable sidecar",
			logger.Path(attrPath), logger.Err(err))
		return nil, false
	}

	rc, err := s.backend.OpenRange(ctx, dataPath, 0, -1)
	if err != nil {
		return nil, false
	}
	defer rc.Close()

	hash := sha256.New()
	n, err := io.Copy(hash, rc)
	if err != nil {
		return nil, false
	}
	if n != attrs.FileSize {
		logger.WarnCtx(ctx, "Recovery found size drift between sidecar and data",
			logger.Path(dataPath), "sidecar_size", attrs.FileSize, "data_size", n)
		return nil, false
	}
	if hex.EncodeToString(hash.Sum(nil)) != attrs.Checksum {
		logger.WarnCtx(ctx, "Recovery found checksum drift between sidecar and data",
			logger.Path(dataPath))
		return nil, false
	}
	return attrs, true
}

// compensate executes the entry's compensation record: remove whatever the
// interrupted transaction managed to write.
func (s *Service) compensate(ctx context.Context, entry *wal.Entry, dataPath, attrPath string) error {
	comp, err := entry.CompensationData()
	if err == nil {
		for _, tmp := range comp.TempPaths {
			if err := s.backend.Delete(ctx, tmp); err != nil {
				logger.WarnCtx(ctx, "Recovery could not remove temp object",
					logger.Path(tmp), logger.Err(err))
			}
		}
	}
	if attrPath != "" {
		if err := s.backend.Delete(ctx, attrPath); err != nil && !errors.Is(err, store.ErrObjectNotFound) {
			return fmt.Errorf("remove sidecar: %w", err)
		}
	}
	if dataPath != "" {
		if err := s.backend.Delete(ctx, dataPath); err != nil && !errors.Is(err, store.ErrObjectNotFound) {
			return fmt.Errorf("remove data object: %w", err)
		}
	}
	if err := s.wal.RollBack(ctx, entry.TransactionID, "recovery: compensated interrupted transaction"); err != nil {
		return err
	}
	logger.WarnCtx(ctx, "Recovery compensated interrupted transaction",
		logger.TransactionID(entry.TransactionID),
		"operation", string(entry.Operation))
	return nil
}

// CompactWAL drops terminal WAL entries older than retention. Meant to run
// from the reporter loop so the WAL database stays bounded.
func (s *Service) CompactWAL(ctx context.Context, retention time.Duration) (int64, error) {
	return s.wal.CompactBefore(ctx, s.now().Add(-retention))
}
