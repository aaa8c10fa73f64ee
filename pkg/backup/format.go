package backup

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Magic number for sealed archives: "ACVT_BKP"
var MagicNumber = [8]byte{'A', 'C', 'V', 'T', '_', 'B', 'K', 'P'}

// Current archive format version.
const FormatVersion = 1

// maxHeaderLen bounds the JSON header read from an untrusted archive.
const maxHeaderLen = 1024 * 1024

// KDFParams contains Argon2id key derivation parameters.
type KDFParams struct {
	Salt        []byte `json:"salt"`        // Base64-encoded salt
	Memory      uint32 `json:"memory"`      // Memory in KiB
	Iterations  uint32 `json:"iterations"`  // Time cost
	Parallelism uint8  `json:"parallelism"` // Threads
}

// Header contains sealed archive metadata. It is authenticated by the
// trailing HMAC but not encrypted.
type Header struct {
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	KDFParams    KDFParams `json:"kdf_params"`
	Source       string    `json:"source"`
	SizeBytes    int64     `json:"size_bytes"`
	Checksum     string    `json:"checksum"`
	ChecksumAlgo string    `json:"checksum_algorithm"`
}

// WriteHeader writes the magic number and header to the writer.
func WriteHeader(w io.Writer, header *Header) error {
	if _, err := w.Write(MagicNumber[:]); err != nil {
		return fmt.Errorf("backup: failed to write magic number: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("backup: failed to marshal header: %w", err)
	}

	// Header length (4 bytes, big-endian)
	if err := binary.Write(w, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return fmt.Errorf("backup: failed to write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("backup: failed to write header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the magic number and header from the reader.
func ReadHeader(r io.Reader) (*Header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, ErrInvalidMagic
	}
	if magic != MagicNumber {
		return nil, ErrInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("%w: header length: %v", ErrTruncated, err)
	}
	if headerLen > maxHeaderLen {
		return nil, fmt.Errorf("backup: header too large: %d bytes", headerLen)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("backup: failed to unmarshal header: %w", err)
	}

	if header.Version > FormatVersion || header.Version < 1 {
		return nil, fmt.Errorf("%w: got %d, max supported %d",
			ErrUnsupportedVersion, header.Version, FormatVersion)
	}

	return &header, nil
}
