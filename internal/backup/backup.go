// Package backup exports and imports the tool domains as a compressed,
// checksummed JSON document.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/notify"
)

// FormatVersion is written into every manifest.
const FormatVersion = "1.0"

// Source reads and writes the tool domains.
type Source interface {
	Snapshot() (map[models.Kind]json.RawMessage, error)
	Apply(states map[models.Kind]json.RawMessage) error
}

// Manifest describes a backup document.
type Manifest struct {
	Version     string    `json:"version"`
	ExportedAt  time.Time `json:"exported_at"`
	DomainCount int       `json:"domain_count"`
	Checksum    string    `json:"checksum"`
}

type document struct {
	Manifest Manifest                   `json:"manifest"`
	Data     map[string]json.RawMessage `json:"data"`
}

// ExportResult represents the result of an export operation.
type ExportResult struct {
	FilePath    string
	SizeBytes   int64
	DomainCount int
	Checksum    string
	Duration    time.Duration
}

// ImportResult represents the result of an import operation.
type ImportResult struct {
	ImportedCount int
	SkippedCount  int
	ExportedAt    time.Time
	Duration      time.Duration
}

// Service provides export/import of tool data.
type Service struct {
	source   Source
	notifier notify.Notifier
}

// NewService creates a Service. A nil notifier logs only.
func NewService(source Source, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &Service{source: source, notifier: notifier}
}

// DefaultFileName returns the conventional backup name for t.
func DefaultFileName(t time.Time) string {
	return fmt.Sprintf("utilitybox-backup-%s.json.gz", t.Format("2006-01-02"))
}

// Export writes a compressed backup of every domain to w.
func (s *Service) Export(w io.Writer) (*ExportResult, error) {
	startTime := time.Now()

	snapshot, err := s.source.Snapshot()
	if err != nil {
		return nil, errors.Wrap(errors.ErrPersistence, "failed to read tool data", err)
	}

	data := make(map[string]json.RawMessage, len(snapshot))
	for kind, state := range snapshot {
		data[string(kind)] = state
	}

	checksum, err := checksumOf(data)
	if err != nil {
		return nil, err
	}

	doc := document{
		Manifest: Manifest{
			Version:     FormatVersion,
			ExportedAt:  startTime.UTC(),
			DomainCount: len(data),
			Checksum:    checksum,
		},
		Data: data,
	}

	counter := &countingWriter{w: w}
	gzw := gzip.NewWriter(counter)
	enc := json.NewEncoder(gzw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		gzw.Close()
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish backup: %w", err)
	}

	s.notifier.Notify(notify.New(models.LevelSuccess, models.EventBackupExported, "Backup exportado com sucesso!"))

	return &ExportResult{
		SizeBytes:   counter.n,
		DomainCount: len(data),
		Checksum:    checksum,
		Duration:    time.Since(startTime),
	}, nil
}

// ExportFile writes a backup to path, creating parent directories.
func (s *Service) ExportFile(path string) (*ExportResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}

	result, err := s.Export(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close backup file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	result.FilePath = path
	logging.Info("Backup exported", map[string]interface{}{
		"path":     path,
		"bytes":    result.SizeBytes,
		"checksum": result.Checksum,
	})
	return result, nil
}

// Import validates a backup from r and overwrites the domains it contains.
// Nothing is written unless the manifest and checksum are valid.
func (s *Service) Import(r io.Reader) (result *ImportResult, err error) {
	defer func() {
		if err != nil {
			s.notifier.Notify(notify.New(models.LevelError, models.EventBackupImported, "Erro ao importar dados!"))
		}
	}()

	startTime := time.Now()

	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCorruptedBackup, "backup is not gzip compressed", err)
	}
	defer gzr.Close()

	var doc document
	if err := json.NewDecoder(gzr).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrCorruptedBackup, "backup is not valid JSON", err)
	}

	if doc.Manifest.Version != FormatVersion {
		return nil, errors.New(errors.ErrCorruptedBackup, fmt.Sprintf("unsupported backup version %q", doc.Manifest.Version))
	}
	if doc.Manifest.Checksum == "" {
		return nil, errors.New(errors.ErrCorruptedBackup, "manifest missing checksum")
	}
	if err := verifyChecksum(doc.Data, doc.Manifest.Checksum); err != nil {
		return nil, err
	}

	states := make(map[models.Kind]json.RawMessage, len(doc.Data))
	skipped := 0
	for key, state := range doc.Data {
		kind := models.Kind(key)
		if !kind.Valid() {
			skipped++
			continue
		}
		states[kind] = state
	}

	if err := s.source.Apply(states); err != nil {
		return nil, err
	}

	s.notifier.Notify(notify.New(models.LevelSuccess, models.EventBackupImported, "Dados importados com sucesso!"))

	return &ImportResult{
		ImportedCount: len(states),
		SkippedCount:  skipped,
		ExportedAt:    doc.Manifest.ExportedAt,
		Duration:      time.Since(startTime),
	}, nil
}

// ImportFile imports the backup at path.
func (s *Service) ImportFile(path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	return s.Import(f)
}

func checksumOf(data map[string]json.RawMessage) (string, error) {
	// map keys marshal in sorted order, so the encoding is canonical
	raw, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(errors.ErrInvalid, "failed to encode tool data", err)
	}
	hash := sha256.Sum256(raw)
	return hex.EncodeToString(hash[:]), nil
}

func verifyChecksum(data map[string]json.RawMessage, expected string) error {
	actual, err := checksumOf(data)
	if err != nil {
		return errors.Wrap(errors.ErrCorruptedBackup, "backup data cannot be encoded", err)
	}
	if actual != expected {
		return errors.New(errors.ErrCorruptedBackup, fmt.Sprintf("checksum mismatch: expected %s, got %s", expected, actual))
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
