package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/notify"
)

const (
	// PasswordMinLength is the shortest accepted backup password.
	PasswordMinLength = 8

	sealMagic      = "UBXSEAL"
	sealVersion    = 1
	saltLength     = 32
	kdfIterations  = 100000
	keyLength      = 32
	maxSealedBytes = 64 << 20
)

// sealHeader precedes the ciphertext of a password-protected backup. The
// password itself is never stored.
type sealHeader struct {
	Version    uint8
	Iterations uint32
	Salt       []byte
	Nonce      []byte
}

// Seal encrypts data with AES-256-GCM under a key derived from password.
func Seal(data []byte, password string) ([]byte, error) {
	if len(password) < PasswordMinLength {
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("password must be at least %d characters", PasswordMinLength))
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt, kdfIterations)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	var buf bytes.Buffer
	writeHeader(&buf, sealHeader{Version: sealVersion, Iterations: kdfIterations, Salt: salt, Nonce: nonce})
	buf.Write(gcm.Seal(nil, nonce, data, []byte(sealMagic)))
	return buf.Bytes(), nil
}

// Unseal reverses Seal. A wrong password and a damaged file are
// indistinguishable and both return CORRUPTED_BACKUP.
func Unseal(sealed []byte, password string) ([]byte, error) {
	h, ciphertext, err := readHeader(sealed)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCorruptedBackup, "not a sealed backup", err)
	}
	if h.Version != sealVersion {
		return nil, errors.New(errors.ErrCorruptedBackup, fmt.Sprintf("unsupported sealed backup version %d", h.Version))
	}

	gcm, err := newGCM(password, h.Salt, int(h.Iterations))
	if err != nil {
		return nil, err
	}
	if len(h.Nonce) != gcm.NonceSize() {
		return nil, errors.New(errors.ErrCorruptedBackup, "invalid nonce length")
	}

	plain, err := gcm.Open(nil, h.Nonce, ciphertext, []byte(sealMagic))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCorruptedBackup, "wrong password or damaged backup", err)
	}
	return plain, nil
}

// IsSealed reports whether data starts with the sealed backup marker.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(sealMagic))
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// =====================================================
// Header Serialization
// =====================================================
// magic(7) | version(1) | iterations(4, big endian) | saltLen(1) salt | nonceLen(1) nonce

func writeHeader(buf *bytes.Buffer, h sealHeader) {
	buf.WriteString(sealMagic)
	buf.WriteByte(h.Version)
	binary.Write(buf, binary.BigEndian, h.Iterations)
	buf.WriteByte(byte(len(h.Salt)))
	buf.Write(h.Salt)
	buf.WriteByte(byte(len(h.Nonce)))
	buf.Write(h.Nonce)
}

func readHeader(data []byte) (sealHeader, []byte, error) {
	var h sealHeader
	r := bytes.NewReader(data)

	magic := make([]byte, len(sealMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != sealMagic {
		return h, nil, fmt.Errorf("missing %s marker", sealMagic)
	}

	var err error
	if h.Version, err = r.ReadByte(); err != nil {
		return h, nil, fmt.Errorf("failed to read version: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &h.Iterations); err != nil {
		return h, nil, fmt.Errorf("failed to read iterations: %w", err)
	}
	if h.Iterations == 0 {
		return h, nil, fmt.Errorf("invalid iteration count")
	}
	if h.Salt, err = readField(r); err != nil {
		return h, nil, fmt.Errorf("failed to read salt: %w", err)
	}
	if h.Nonce, err = readField(r); err != nil {
		return h, nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	return h, data[len(data)-r.Len():], nil
}

func readField(r *bytes.Reader) ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	field := make([]byte, n)
	if _, err := io.ReadFull(r, field); err != nil {
		return nil, err
	}
	return field, nil
}

// =====================================================
// Service integration
// =====================================================

// ExportSealed writes a password-protected backup to w.
func (s *Service) ExportSealed(w io.Writer, password string) (*ExportResult, error) {
	if len(password) < PasswordMinLength {
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("password must be at least %d characters", PasswordMinLength))
	}

	var plain bytes.Buffer
	result, err := s.Export(&plain)
	if err != nil {
		return nil, err
	}

	sealed, err := Seal(plain.Bytes(), password)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(sealed); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	result.SizeBytes = int64(len(sealed))
	return result, nil
}

// ImportSealed decrypts a password-protected backup from r and imports it.
func (s *Service) ImportSealed(r io.Reader, password string) (*ImportResult, error) {
	sealed, err := io.ReadAll(io.LimitReader(r, maxSealedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	plain, err := Unseal(sealed, password)
	if err != nil {
		s.notifier.Notify(notify.New(models.LevelError, models.EventBackupImported, "Erro ao importar dados!"))
		return nil, err
	}

	return s.Import(bytes.NewReader(plain))
}
