package passage

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentID computes the content-addressed id of cleaned text: lowercase
// hex SHA-256 of its UTF-8 bytes (§4.3). Two passages with identical
// content always collapse to the same id.
func ContentID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
