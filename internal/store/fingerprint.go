package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// OptionsFingerprint derives the digest identifying a variant's combination
// of option values within its product. Value ids are sorted first so the
// result is independent of selection order. Two variants of the same product
// with the same value set always collide, which is exactly what the unique
// index on (product_id, options_fingerprint) relies on.
func OptionsFingerprint(productID int64, optionValueIDs []int64) string {
	ids := make([]int64, len(optionValueIDs))
	copy(ids, optionValueIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var sb strings.Builder
	fmt.Fprintf(&sb, "p%d", productID)
	for _, id := range ids {
		fmt.Fprintf(&sb, ":%d", id)
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
