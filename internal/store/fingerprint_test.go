package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsFingerprint(t *testing.T) {
	t.Run("selection_order_is_irrelevant", func(t *testing.T) {
		a := OptionsFingerprint(1, []int64{3, 7, 2})
		b := OptionsFingerprint(1, []int64{7, 2, 3})
		assert.Equal(t, a, b)
	})

	t.Run("value_sets_distinguish", func(t *testing.T) {
		a := OptionsFingerprint(1, []int64{3, 7})
		b := OptionsFingerprint(1, []int64{3, 8})
		assert.NotEqual(t, a, b)
	})

	t.Run("product_distinguishes", func(t *testing.T) {
		a := OptionsFingerprint(1, []int64{3, 7})
		b := OptionsFingerprint(2, []int64{3, 7})
		assert.NotEqual(t, a, b)
	})

	t.Run("empty_selection_still_fingerprints", func(t *testing.T) {
		got := OptionsFingerprint(42, nil)
		assert.Len(t, got, 64)
		assert.NotEqual(t, OptionsFingerprint(43, nil), got)
	})

	t.Run("input_slice_not_mutated", func(t *testing.T) {
		ids := []int64{9, 1, 5}
		OptionsFingerprint(1, ids)
		assert.Equal(t, []int64{9, 1, 5}, ids)
	})
}
