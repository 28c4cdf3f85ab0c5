package claim

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainDedup separates dedup hashes from any other hash the system computes.
// The version suffix allows a future change of normalization rules.
const DomainDedup = "claimrecon/dedup/v1"

// NormalizeKey trims s and converts it to Unicode NFC, so visually identical
// identifiers compare equal.
func NormalizeKey(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// DedupKey returns the uniqueness key for a (subject, kind) pair.
//
// Format: hex(SHA256(domain 0x00 subject 0x00 kind)) over NFC-normalized
// values. The null separators keep ("ab","c") and ("a","bc") apart.
func DedupKey(subjectID, kind string) string {
	h := sha256.New()
	h.Write([]byte(DomainDedup))
	h.Write([]byte{0x00})
	h.Write([]byte(NormalizeKey(subjectID)))
	h.Write([]byte{0x00})
	h.Write([]byte(NormalizeKey(kind)))
	return hex.EncodeToString(h.Sum(nil))
}
