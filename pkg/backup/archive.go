package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/forest6511/acctvault/pkg/crypto"
)

// Archive layout:
//
//	magic "ACVT_BKP" | uint32 BE header length | header JSON |
//	uint32 BE payload length | nonce || AES-256-GCM ciphertext | HMAC-SHA256
//
// The HMAC covers every byte before it.

// Seal writes an encrypted, authenticated archive of the snapshot at
// snapshotPath to w.
func Seal(w io.Writer, snapshotPath string, password []byte) (*Header, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}

	snapshot, err := os.ReadFile(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read snapshot: %w", err)
	}
	defer crypto.SecureWipe(snapshot)

	params, err := NewKDFParams()
	if err != nil {
		return nil, err
	}
	encKey, macKey, err := DeriveBackupKeys(password, params)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	ciphertext, err := encryptPayload(snapshot, encKey)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(snapshot)
	header := &Header{
		Version:      FormatVersion,
		CreatedAt:    time.Now().UTC(),
		KDFParams:    params,
		Source:       filepath.Base(snapshotPath),
		SizeBytes:    int64(len(snapshot)),
		Checksum:     hex.EncodeToString(sum[:]),
		ChecksumAlgo: "sha256",
	}

	// Buffer first so the HMAC can cover header and payload.
	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext))); err != nil {
		return nil, fmt.Errorf("backup: failed to write payload length: %w", err)
	}
	buf.Write(ciphertext)

	mac := ComputeHMAC(buf.Bytes(), macKey)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("backup: failed to write archive: %w", err)
	}
	if _, err := w.Write(mac); err != nil {
		return nil, fmt.Errorf("backup: failed to write HMAC: %w", err)
	}
	return header, nil
}

// Open verifies and decrypts an archive written by Seal and returns the
// snapshot bytes. The HMAC is checked before anything is decrypted.
func Open(r io.Reader, password []byte) ([]byte, *Header, error) {
	if len(password) == 0 {
		return nil, nil, ErrEmptyPassword
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("backup: failed to read archive: %w", err)
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	var payloadLen uint32
	if err := binary.Read(reader, binary.BigEndian, &payloadLen); err != nil {
		return nil, nil, fmt.Errorf("%w: payload length", ErrTruncated)
	}
	if uint64(reader.Len()) < uint64(payloadLen)+HMACLength {
		return nil, nil, ErrTruncated
	}

	macStart := len(data) - reader.Len() + int(payloadLen)
	ciphertext := data[macStart-int(payloadLen) : macStart]
	storedMAC := data[macStart : macStart+HMACLength]
	if macStart+HMACLength != len(data) {
		return nil, nil, fmt.Errorf("%w: trailing data after HMAC", ErrIntegrityFailed)
	}

	encKey, macKey, err := DeriveBackupKeys(password, header.KDFParams)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	// A wrong password fails here too; both surface as an integrity failure.
	if !VerifyHMAC(data[:macStart], storedMAC, macKey) {
		return nil, nil, ErrIntegrityFailed
	}

	snapshot, err := decryptPayload(ciphertext, encKey)
	if err != nil {
		return nil, nil, err
	}

	sum := sha256.Sum256(snapshot)
	if hex.EncodeToString(sum[:]) != header.Checksum || int64(len(snapshot)) != header.SizeBytes {
		crypto.SecureWipe(snapshot)
		return nil, nil, fmt.Errorf("%w: content checksum mismatch", ErrIntegrityFailed)
	}
	return snapshot, header, nil
}

// Unseal opens an archive and stores the snapshot in dir as a new
// "imported" backup with a manifest, so it can be restored by name.
func Unseal(ctx context.Context, r io.Reader, password []byte, dir string) (*Info, error) {
	return unseal(ctx, r, password, dir, time.Now())
}

// Unseal is the package Unseal writing into the manager's directory.
func (m *Manager) Unseal(ctx context.Context, r io.Reader, password []byte) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := unseal(ctx, r, password, m.dir, m.now())
	if err != nil {
		return nil, err
	}
	m.cleanup(ctx, info.Name)
	return info, nil
}

// Seal writes the named backup as a sealed archive.
func (m *Manager) Seal(name string, w io.Writer, password []byte) (*Header, error) {
	path, err := m.Path(name)
	if err != nil {
		return nil, err
	}
	return Seal(w, path, password)
}

func unseal(ctx context.Context, r io.Reader, password []byte, dir string, now time.Time) (*Info, error) {
	snapshot, _, err := Open(r, password)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(snapshot)

	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}
	path := filepath.Join(dir, backupName(now, ReasonImported))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FileMode)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to create imported backup: %w", err)
	}
	if _, err := f.Write(snapshot); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("backup: failed to write imported backup: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("backup: failed to write imported backup: %w", err)
	}

	if err := verifyFile(ctx, path); err != nil {
		os.Remove(path)
		return nil, err
	}
	if err := os.Chtimes(path, now, now); err != nil {
		return nil, fmt.Errorf("backup: failed to stamp backup: %w", err)
	}
	return writeManifest(path, now)
}
