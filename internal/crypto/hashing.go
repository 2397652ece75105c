package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSHA256 returns the hex SHA-256 of data. Keyed stores index state
// tokens by this hash so a leaked table does not leak live tokens.
func HashSHA256(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
