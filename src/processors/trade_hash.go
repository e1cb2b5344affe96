package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/username/tradeclarity/backend/src/models"
)

// ComputeTradesHash digests a user's trade set into a hex SHA-256 string used
// for cache invalidation. Each trade contributes a stable identifier (primary
// key when present, otherwise tradeId-tradeTime) joined with its last-modified
// timestamp; the per-trade strings are sorted before hashing so the result is
// insertion-order independent while still changing on any add, update or
// delete.
//
// Economic fields (price, quantity, commission) are deliberately not hashed:
// trades are append-only in practice, and an in-place edit that does not bump
// updated_at will not invalidate the cache.
func ComputeTradesHash(trades []models.CanonicalTrade) string {
	keys := make([]string, 0, len(trades))
	for _, t := range trades {
		var id string
		if t.ID != 0 {
			id = strconv.FormatInt(t.ID, 10)
		} else {
			id = t.TradeID + "-" + strconv.FormatInt(t.TradeTime, 10)
		}
		keys = append(keys, id+"|"+strconv.FormatInt(t.UpdatedAt.UnixMilli(), 10))
	}
	sort.Strings(keys)

	sum := sha256.Sum256([]byte(strings.Join(keys, ";")))
	return hex.EncodeToString(sum[:])
}
