// Package strings provides string manipulation utilities.
package strings

import "slices"

// DedupeNonEmpty removes duplicates and empty strings from a slice. Values are
// compared exactly (no trimming or case folding) and first-seen order is
// preserved. The result is never nil.
//
// Example:
//
//	DedupeNonEmpty([]string{"a@x.com", "", "b@x.com", "a@x.com"})
//	// Returns: []string{"a@x.com", "b@x.com"}
func DedupeNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}

// SortedUnique returns the distinct values of keys in ascending order as a new
// slice. Works for any ordered type; used for id lists and lock keys.
func SortedUnique[T ~int64 | ~string](keys []T) []T {
	seen := make(map[T]struct{}, len(keys))
	result := make([]T, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, k)
	}
	slices.Sort(result)
	return result
}
