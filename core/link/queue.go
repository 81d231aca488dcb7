package link

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"Bt1QLink/model"
)

var (
	// ErrInvalidItem 入队元素不是合法的曲目变体
	ErrInvalidItem = errors.New("queue item is neither a track nor an unresolved track")
	// ErrOffsetOutOfRange 插入位置越界
	ErrOffsetOutOfRange = errors.New("queue offset out of range")
	// ErrRemoveOutOfRange 移除区间非法
	ErrRemoveOutOfRange = errors.New("queue remove range out of range")
)

// Queue holds the ordered pending tracks plus the distinguished current and
// previous slots. current is the track actively playing and is not part of
// the pending sequence.
type Queue struct {
	mu       sync.RWMutex
	items    []model.QueueItem
	current  *model.QueueItem
	previous *model.QueueItem
}

// NewQueue 创建空队列
func NewQueue() *Queue {
	return &Queue{}
}

// Add validates and enqueues items. With no current track the first item
// becomes current and the remainder is appended. offset < 0 appends;
// otherwise items are inserted at offset, which must satisfy
// 0 <= offset <= pending length.
func (q *Queue) Add(items []model.QueueItem, offset int) error {
	for _, item := range items {
		if !item.Valid() {
			return ErrInvalidItem
		}
	}
	if len(items) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		first := items[0]
		q.current = &first
		items = items[1:]
		q.items = append(q.items, items...)
		return nil
	}

	if offset < 0 || offset == len(q.items) {
		q.items = append(q.items, items...)
		return nil
	}
	if offset > len(q.items) {
		return ErrOffsetOutOfRange
	}

	// 在新底层数组上拼接，避免写入调用方保留的切片
	merged := make([]model.QueueItem, 0, len(q.items)+len(items))
	merged = append(merged, q.items[:offset]...)
	merged = append(merged, items...)
	merged = append(merged, q.items[offset:]...)
	q.items = merged
	return nil
}

// Remove removes either the single element at start (end < 0) or the
// contiguous range [start, end). Requires start < end for ranges and
// start < pending length in all cases.
func (q *Queue) Remove(start, end int) ([]model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if start < 0 || start >= len(q.items) {
		return nil, ErrRemoveOutOfRange
	}
	if end < 0 {
		end = start + 1
	}
	if start >= end {
		return nil, ErrRemoveOutOfRange
	}
	if end > len(q.items) {
		end = len(q.items)
	}

	removed := make([]model.QueueItem, end-start)
	copy(removed, q.items[start:end])
	q.items = append(q.items[:start], q.items[end:]...)
	return removed, nil
}

// Shuffle 原地均匀打乱待播序列，不影响 current
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

// Advance moves previous←current and current←head of the pending sequence
// (nil when nothing is pending). Returns the new current.
func (q *Queue) Advance() *model.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.previous = q.current
	if len(q.items) == 0 {
		q.current = nil
		return nil
	}
	head := q.items[0]
	q.items = q.items[1:]
	q.current = &head
	return q.current
}

// MarkPrevious 仅把 current 记为 previous，不出队（replaced 语义）
func (q *Queue) MarkPrevious() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.previous = q.current
}

// PushFront 把元素插到待播序列头部
func (q *Queue) PushFront(item model.QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]model.QueueItem{item}, q.items...)
}

// PushBack 把元素追加到待播序列尾部
func (q *Queue) PushBack(item model.QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// SetCurrent 直接设置当前曲目（播放新曲目时使用）
func (q *Queue) SetCurrent(item *model.QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = item
}

// Current 返回当前曲目，可能为 nil
func (q *Queue) Current() *model.QueueItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

// Previous 返回上一首，可能为 nil
func (q *Queue) Previous() *model.QueueItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.previous
}

// Pending 返回待播序列的副本
func (q *Queue) Pending() []model.QueueItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]model.QueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// Size 待播曲目数，不含 current
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// TotalSize 总曲目数，current 存在时计入
func (q *Queue) TotalSize() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	total := len(q.items)
	if q.current != nil {
		total++
	}
	return total
}

// Duration 队列总时长，含 current
func (q *Queue) Duration() time.Duration {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var ms int64
	if q.current != nil {
		ms += q.current.Length()
	}
	for _, item := range q.items {
		ms += item.Length()
	}
	return time.Duration(ms) * time.Millisecond
}

// Clear 清空待播序列与 current
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.current = nil
}

// EncodedTracks returns the encoded payloads of current plus pending
// resolved tracks, for snapshot persistence. Unresolved entries are skipped.
func (q *Queue) EncodedTracks() (current string, pending []string) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.current != nil && q.current.Kind == model.ItemTrack && q.current.Track != nil {
		current = q.current.Track.Encoded
	}
	for _, item := range q.items {
		if item.Kind == model.ItemTrack && item.Track != nil {
			pending = append(pending, item.Track.Encoded)
		}
	}
	return current, pending
}
