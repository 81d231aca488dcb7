package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbnailDerivation(t *testing.T) {
	yt := &Track{Info: TrackInfo{SourceName: "youtube", Identifier: "abc123"}}
	assert.Equal(t, "https://img.youtube.com/vi/abc123/mqdefault.jpg", yt.Thumbnail())

	withArtwork := &Track{Info: TrackInfo{SourceName: "soundcloud", ArtworkURL: "https://cdn.example.com/a.jpg"}}
	assert.Equal(t, "https://cdn.example.com/a.jpg", withArtwork.Thumbnail())

	bare := &Track{Info: TrackInfo{SourceName: "http"}}
	assert.Empty(t, bare.Thumbnail())
}

func TestQueueItemValidity(t *testing.T) {
	assert.False(t, QueueItem{}.Valid())
	assert.False(t, QueueItem{Kind: ItemTrack}.Valid())
	assert.False(t, QueueItem{Kind: ItemUnresolved}.Valid())

	assert.True(t, NewTrackItem(&Track{Encoded: "enc"}).Valid())
	assert.True(t, NewUnresolvedItem(&UnresolvedTrack{Title: "t"}).Valid())
}

func TestQueueItemTitleAndLength(t *testing.T) {
	track := NewTrackItem(&Track{Info: TrackInfo{Title: "Song", Length: 180000}})
	assert.Equal(t, "Song", track.Title())
	assert.Equal(t, int64(180000), track.Length())

	lazy := NewUnresolvedItem(&UnresolvedTrack{Title: "Pending", Length: 90000})
	assert.Equal(t, "Pending", lazy.Title())
	assert.Equal(t, int64(90000), lazy.Length())
}

func TestUnresolvedResolve(t *testing.T) {
	want := &Track{Encoded: "enc-x"}
	u := &UnresolvedTrack{
		Title: "find me",
		Resolver: func(ctx context.Context, u *UnresolvedTrack) (*Track, error) {
			return want, nil
		},
	}

	got, err := u.Resolve(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)

	noResolver := &UnresolvedTrack{Title: "stuck"}
	_, err = noResolver.Resolve(context.Background())
	require.Error(t, err)

	failing := &UnresolvedTrack{
		Title: "broken",
		Resolver: func(ctx context.Context, u *UnresolvedTrack) (*Track, error) {
			return nil, errors.New("no match")
		},
	}
	_, err = failing.Resolve(context.Background())
	require.Error(t, err)
}

func TestSnapshotComplete(t *testing.T) {
	s := &PlayerSnapshot{GuildID: "g", VoiceChannelID: "v", TextChannelID: "t"}
	assert.True(t, s.Complete())

	for _, mutate := range []func(*PlayerSnapshot){
		func(s *PlayerSnapshot) { s.GuildID = "" },
		func(s *PlayerSnapshot) { s.VoiceChannelID = "" },
		func(s *PlayerSnapshot) { s.TextChannelID = "" },
	} {
		c := *s
		mutate(&c)
		assert.False(t, c.Complete())
	}
}
