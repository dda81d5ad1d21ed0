package backup

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/notify"
	"github.com/Nyvram23/Utility-Box/internal/store"
	"github.com/Nyvram23/Utility-Box/internal/tools"
)

func seededRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(store.NewMemoryStore())
	require.NoError(t, r.Write(models.KindNotes, json.RawMessage(`[{"title":"groceries","body":"milk & eggs"}]`)))
	require.NoError(t, r.Write(models.KindTasks, json.RawMessage(`[{"title":"ship","column":"doing"}]`)))
	require.NoError(t, r.Write(models.KindSolitaire, json.RawMessage(`{"wins": 4, "games": 9}`)))
	return r
}

// readDocument decompresses a backup for inspection.
func readDocument(t *testing.T, raw []byte) document {
	t.Helper()
	gzr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer gzr.Close()

	var doc document
	require.NoError(t, json.NewDecoder(gzr).Decode(&doc))
	return doc
}

func writeDocument(t *testing.T, doc document) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	require.NoError(t, json.NewEncoder(gzw).Encode(doc))
	require.NoError(t, gzw.Close())
	return buf.Bytes()
}

// TestExport verifies the manifest and data of an exported backup.
func TestExport(t *testing.T) {
	rec := &notify.Recorder{}
	svc := NewService(seededRegistry(t), rec)

	var buf bytes.Buffer
	result, err := svc.Export(&buf)
	require.NoError(t, err)

	assert.Equal(t, 5, result.DomainCount)
	assert.Equal(t, int64(buf.Len()), result.SizeBytes)
	assert.Len(t, result.Checksum, 64)

	doc := readDocument(t, buf.Bytes())
	assert.Equal(t, FormatVersion, doc.Manifest.Version)
	assert.Equal(t, result.Checksum, doc.Manifest.Checksum)
	assert.JSONEq(t, `{"wins":4,"games":9}`, string(doc.Data["solitaire"]))
	assert.JSONEq(t, `[]`, string(doc.Data["calculator"]))

	assert.Equal(t, 1, rec.Count(models.EventBackupExported))
}

// TestExportImport verifies data restored into an empty registry matches the source.
func TestExportImport(t *testing.T) {
	source := seededRegistry(t)

	var buf bytes.Buffer
	_, err := NewService(source, nil).Export(&buf)
	require.NoError(t, err)

	target := tools.NewRegistry(store.NewMemoryStore())
	rec := &notify.Recorder{}
	result, err := NewService(target, rec).Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, 5, result.ImportedCount)
	assert.Equal(t, 0, result.SkippedCount)

	want, _ := source.Snapshot()
	got, _ := target.Snapshot()
	for kind, data := range want {
		assert.JSONEq(t, string(data), string(got[kind]), "domain %s", kind)
	}

	last, _ := rec.Last()
	assert.Equal(t, models.LevelSuccess, last.Level)
}

// TestImport_checksumMismatch verifies tampered data is rejected without writing.
func TestImport_checksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewService(seededRegistry(t), nil).Export(&buf)
	require.NoError(t, err)

	doc := readDocument(t, buf.Bytes())
	doc.Data["notes"] = json.RawMessage(`[{"title":"tampered"}]`)

	target := tools.NewRegistry(store.NewMemoryStore())
	require.NoError(t, target.Write(models.KindNotes, json.RawMessage(`["original"]`)))

	rec := &notify.Recorder{}
	_, err = NewService(target, rec).Import(bytes.NewReader(writeDocument(t, doc)))
	assert.True(t, errors.Is(err, errors.ErrCorruptedBackup))

	notes, _ := target.Read(models.KindNotes)
	assert.JSONEq(t, `["original"]`, string(notes))

	last, _ := rec.Last()
	assert.Equal(t, models.LevelError, last.Level)
}

// TestImport_storeFailureWritesNothing verifies a failing write leaves every domain intact.
func TestImport_storeFailureWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewService(seededRegistry(t), nil).Export(&buf)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	target := tools.NewRegistry(st)
	require.NoError(t, target.Write(models.KindNotes, json.RawMessage(`["original"]`)))
	st.FailKey(store.DomainKey(models.KindSolitaire), stderrors.New("quota exceeded"))

	_, err = NewService(target, nil).Import(bytes.NewReader(buf.Bytes()))
	assert.True(t, errors.Is(err, errors.ErrPersistence))

	notes, _ := target.Read(models.KindNotes)
	assert.JSONEq(t, `["original"]`, string(notes))
	tasks, _ := target.Read(models.KindTasks)
	assert.JSONEq(t, `[]`, string(tasks))
}

// TestImport_invalidDocuments verifies malformed inputs are reported as corrupted.
func TestImport_invalidDocuments(t *testing.T) {
	svc := NewService(tools.NewRegistry(store.NewMemoryStore()), nil)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"not gzip", []byte(`{"manifest":{}}`)},
		{"not json", func() []byte {
			var buf bytes.Buffer
			gzw := gzip.NewWriter(&buf)
			gzw.Write([]byte("definitely not json"))
			gzw.Close()
			return buf.Bytes()
		}()},
		{"wrong version", writeDocument(t, document{Manifest: Manifest{Version: "9.9", Checksum: "x"}})},
		{"missing checksum", writeDocument(t, document{Manifest: Manifest{Version: FormatVersion}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(bytes.NewReader(tt.raw))
			assert.True(t, errors.Is(err, errors.ErrCorruptedBackup), "got %v", err)
		})
	}
}

// TestImport_skipsUnknownDomains verifies foreign keys are counted and ignored.
func TestImport_skipsUnknownDomains(t *testing.T) {
	data := map[string]json.RawMessage{
		"notes": json.RawMessage(`["n"]`),
		"theme": json.RawMessage(`"dark"`),
	}
	sum, err := checksumOf(data)
	require.NoError(t, err)

	target := tools.NewRegistry(store.NewMemoryStore())
	result, err := NewService(target, nil).Import(bytes.NewReader(writeDocument(t, document{
		Manifest: Manifest{Version: FormatVersion, ExportedAt: time.Now().UTC(), Checksum: sum},
		Data:     data,
	})))
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImportedCount)
	assert.Equal(t, 1, result.SkippedCount)
}

// TestExportImportFile verifies the file helpers and default naming.
func TestExportImportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", DefaultFileName(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "utilitybox-backup-2026-10-19.json.gz", filepath.Base(path))

	result, err := NewService(seededRegistry(t), nil).ExportFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, result.FilePath)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, result.SizeBytes, info.Size())

	target := tools.NewRegistry(store.NewMemoryStore())
	_, err = NewService(target, nil).ImportFile(path)
	require.NoError(t, err)

	tasks, _ := target.Read(models.KindTasks)
	assert.JSONEq(t, `[{"title":"ship","column":"doing"}]`, string(tasks))

	_, err = NewService(target, nil).ImportFile(filepath.Join(dir, "missing.json.gz"))
	assert.Error(t, err)
}
