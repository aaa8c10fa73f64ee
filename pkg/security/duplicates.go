package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/acctvault/pkg/vault"
)

// DuplicateGroup represents accounts sharing the same password.
type DuplicateGroup struct {
	AccountIDs []int64 `json:"account_ids"`
	Count      int     `json:"count"`
}

// FindDuplicates groups accounts by password, most reused first.
// Passwords are compared as HMAC-SHA256 digests under a key that lives only
// as long as the Calculator; values are trimmed and NFC-normalized first.
func (c *Calculator) FindDuplicates(accounts []*vault.Account) ([]DuplicateGroup, error) {
	if c.hmacKey == nil {
		c.hmacKey = make([]byte, 32)
		if _, err := rand.Read(c.hmacKey); err != nil {
			return nil, err
		}
	}

	byHash := make(map[string][]int64)
	for _, a := range accounts {
		value := normalizeValue(a.Password)
		if value == "" {
			continue
		}
		h := computeValueHash(value, c.hmacKey)
		byHash[h] = append(byHash[h], a.ID)
	}

	var groups []DuplicateGroup
	for _, ids := range byHash {
		if len(ids) < 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		groups = append(groups, DuplicateGroup{AccountIDs: ids, Count: len(ids)})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].AccountIDs[0] < groups[j].AccountIDs[0]
	})
	return groups, nil
}

func computeValueHash(value string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeValue(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
