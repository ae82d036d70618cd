// Package dedup computes which candidate ids actually need to be written.
package dedup

import (
	"context"
	"fmt"
)

// MembershipReader is the read side of the membership store needed here.
type MembershipReader interface {
	Contains(ctx context.Context, collectionID string, ids []int64) (map[int64]struct{}, error)
}

// Difference returns candidates minus present, preserving candidate order and
// dropping repeats.
func Difference(candidates []int64, present map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(candidates))
	seen := make(map[int64]struct{}, len(candidates))
	for _, id := range candidates {
		if _, ok := present[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Intersection returns the candidates that are in present, preserving order.
func Intersection(candidates []int64, present map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(present))
	seen := make(map[int64]struct{}, len(present))
	for _, id := range candidates {
		if _, ok := present[id]; !ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ToInsert returns the ids from batch that are not yet members of target.
func ToInsert(ctx context.Context, r MembershipReader, target string, batch []int64) ([]int64, error) {
	present, err := r.Contains(ctx, target, batch)
	if err != nil {
		return nil, fmt.Errorf("read target membership: %w", err)
	}
	return Difference(batch, present), nil
}

// ToRemove returns the ids from batch that are currently members of target.
func ToRemove(ctx context.Context, r MembershipReader, target string, batch []int64) ([]int64, error) {
	present, err := r.Contains(ctx, target, batch)
	if err != nil {
		return nil, fmt.Errorf("read target membership: %w", err)
	}
	return Intersection(batch, present), nil
}

// Unique drops repeated ids, keeping first occurrence order.
func Unique(ids []int64) []int64 {
	return Difference(ids, nil)
}
