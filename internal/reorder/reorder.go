package reorder

import (
	"errors"
	"fmt"
	"sort"
)

var ErrIndexOutOfRange = errors.New("index out of range")

// Reorder 把 from 处的元素移动到 to，返回新切片
func Reorder[T any](items []T, from, to int) ([]T, error) {
	n := len(items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return nil, fmt.Errorf("%w: from=%d to=%d len=%d", ErrIndexOutOfRange, from, to, n)
	}
	out := make([]T, 0, n)
	moved := items[from]
	for i, it := range items {
		if i == from {
			continue
		}
		out = append(out, it)
	}
	return insertAt(out, to, moved), nil
}

// Move 跨列表移动（看板换列）。to 可以等于 len(dst)，表示追加到末尾
func Move[T any](src, dst []T, from, to int) ([]T, []T, error) {
	if from < 0 || from >= len(src) {
		return nil, nil, fmt.Errorf("%w: from=%d len=%d", ErrIndexOutOfRange, from, len(src))
	}
	if to < 0 || to > len(dst) {
		return nil, nil, fmt.Errorf("%w: to=%d len=%d", ErrIndexOutOfRange, to, len(dst))
	}
	moved := src[from]
	newSrc := make([]T, 0, len(src)-1)
	newSrc = append(newSrc, src[:from]...)
	newSrc = append(newSrc, src[from+1:]...)

	newDst := make([]T, 0, len(dst)+1)
	newDst = append(newDst, dst...)
	return newSrc, insertAt(newDst, to, moved), nil
}

func insertAt[T any](items []T, idx int, v T) []T {
	var zero T
	items = append(items, zero)
	copy(items[idx+1:], items[idx:])
	items[idx] = v
	return items
}

// Renumber 按切片顺序赋值位置 0..n-1，返回位置发生变化的下标
func Renumber[T any](items []T, get func(T) int, set func(T, int)) []int {
	var changed []int
	for i, it := range items {
		if get(it) != i {
			set(it, i)
			changed = append(changed, i)
		}
	}
	return changed
}

// ResolveConflicts 按位置顺序线性扫描，把重复或倒序的位置改成前一个位置+1。
// items 会按位置稳定排序后返回，同时返回被修改的元素
func ResolveConflicts[T any](items []T, get func(T) int, set func(T, int)) ([]T, []T) {
	out := append([]T(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return get(out[i]) < get(out[j]) })

	var changed []T
	for i := 1; i < len(out); i++ {
		prev := get(out[i-1])
		if get(out[i]) <= prev {
			set(out[i], prev+1)
			changed = append(changed, out[i])
		}
	}
	return out, changed
}

// InsertPosition 计算在 index 处插入时的位置值（positions 为已排序的现有位置）。
// 两个邻居之间没有空位时返回 ok=false，调用方需要 Renumber
func InsertPosition(positions []int, index int) (pos int, ok bool) {
	n := len(positions)
	switch {
	case index < 0 || index > n:
		return 0, false
	case n == 0:
		return 0, true
	case index == 0:
		return positions[0] - 1, true
	case index == n:
		return positions[n-1] + 1, true
	}
	lo, hi := positions[index-1], positions[index]
	if hi-lo < 2 {
		return 0, false
	}
	return lo + (hi-lo)/2, true
}
