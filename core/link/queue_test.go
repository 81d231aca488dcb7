package link

import (
	"testing"

	"Bt1QLink/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueAddFirstBecomesCurrent(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Add([]model.QueueItem{testItem("a"), testItem("b")}, -1))

	cur := q.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "enc-a", cur.Track.Encoded)
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, 2, q.TotalSize())
}

func TestQueueAddAtOffset(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Add([]model.QueueItem{testItem("a"), testItem("b"), testItem("c")}, -1))

	// 插到待播区最前面
	require.NoError(t, q.Add([]model.QueueItem{testItem("x")}, 0))
	pending := q.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "enc-x", pending[0].Track.Encoded)
	assert.Equal(t, "enc-b", pending[1].Track.Encoded)

	// 越界
	err := q.Add([]model.QueueItem{testItem("y")}, 99)
	assert.ErrorIs(t, err, ErrOffsetOutOfRange)
}

func TestQueueAddOffsetLeavesCallerSliceIntact(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Add([]model.QueueItem{testItem("a"), testItem("b"), testItem("c")}, -1))

	// 调用方切片留有冗余容量，插入不得写入其底层数组
	batch := make([]model.QueueItem, 1, 4)
	batch[0] = testItem("x")
	require.NoError(t, q.Add(batch, 1))

	pending := q.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "enc-b", pending[0].Track.Encoded)
	assert.Equal(t, "enc-x", pending[1].Track.Encoded)
	assert.Equal(t, "enc-c", pending[2].Track.Encoded)

	spare := batch[:cap(batch)]
	for _, item := range spare[1:] {
		assert.False(t, item.Valid())
	}
}

func TestQueueAddRejectsInvalidItem(t *testing.T) {
	q := NewQueue()
	err := q.Add([]model.QueueItem{{}}, -1)
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Add([]model.QueueItem{
		testItem("a"), testItem("b"), testItem("c"), testItem("d"),
	}, -1))

	// 单个移除
	removed, err := q.Remove(1, -1)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "enc-c", removed[0].Track.Encoded)

	// 区间移除
	removed, err = q.Remove(0, 2)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, 0, q.Size())

	_, err = q.Remove(0, -1)
	assert.ErrorIs(t, err, ErrRemoveOutOfRange)
}

func TestQueueAdvance(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Add([]model.QueueItem{testItem("a"), testItem("b")}, -1))

	next := q.Advance()
	require.NotNil(t, next)
	assert.Equal(t, "enc-b", next.Track.Encoded)

	prev := q.Previous()
	require.NotNil(t, prev)
	assert.Equal(t, "enc-a", prev.Track.Encoded)

	// 队列耗尽
	assert.Nil(t, q.Advance())
	assert.Nil(t, q.Current())
}

func TestQueuePushFrontAndBack(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Add([]model.QueueItem{testItem("a"), testItem("b")}, -1))

	q.PushFront(testItem("front"))
	q.PushBack(testItem("back"))

	pending := q.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "enc-front", pending[0].Track.Encoded)
	assert.Equal(t, "enc-back", pending[2].Track.Encoded)
}

func TestQueueShuffleKeepsCurrent(t *testing.T) {
	q := NewQueue()
	items := []model.QueueItem{testItem("a")}
	for i := 0; i < 20; i++ {
		items = append(items, testItem(string(rune('b'+i))))
	}
	require.NoError(t, q.Add(items, -1))

	before := q.Current().Track.Encoded
	q.Shuffle()
	assert.Equal(t, before, q.Current().Track.Encoded)
	assert.Equal(t, 20, q.Size())
}

func TestQueueClear(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Add([]model.QueueItem{testItem("a"), testItem("b")}, -1))
	q.Clear()
	assert.Nil(t, q.Current())
	assert.Equal(t, 0, q.Size())
}

func TestQueueEncodedTracks(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Add([]model.QueueItem{testItem("a"), testItem("b"), testItem("c")}, -1))

	current, pending := q.EncodedTracks()
	assert.Equal(t, "enc-a", current)
	assert.Equal(t, []string{"enc-b", "enc-c"}, pending)
}
