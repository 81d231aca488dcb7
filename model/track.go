package model

import (
	"context"
	"fmt"
	"time"
)

// TrackInfo 节点返回的曲目元数据
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"` // 毫秒
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkUrl"`
	SourceName string `json:"sourceName"`
}

// Track represents a resolved, playable track. Encoded is the opaque
// payload the node uses to play it.
type Track struct {
	Encoded   string    `json:"encoded"`
	Info      TrackInfo `json:"info"`
	Requester string    `json:"requester,omitempty"`
}

// Thumbnail returns the artwork URL for the track. YouTube tracks without
// explicit artwork derive one from the video identifier.
func (t *Track) Thumbnail() string {
	if t.Info.ArtworkURL != "" {
		return t.Info.ArtworkURL
	}
	if t.Info.SourceName == "youtube" && t.Info.Identifier != "" {
		return fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", t.Info.Identifier)
	}
	return ""
}

// Duration 曲目时长
func (t *Track) Duration() time.Duration {
	return time.Duration(t.Info.Length) * time.Millisecond
}

// ResolveFunc 搜索并把未解析曲目替换成真正的 Track
type ResolveFunc func(ctx context.Context, u *UnresolvedTrack) (*Track, error)

// UnresolvedTrack carries partial metadata plus a resolve procedure. It is
// never sent to a node directly; Resolve must be called first.
type UnresolvedTrack struct {
	Title     string      `json:"title"`
	Author    string      `json:"author,omitempty"`
	Length    int64       `json:"length,omitempty"` // 毫秒，未知时为 0
	Requester string      `json:"requester,omitempty"`
	Resolver  ResolveFunc `json:"-"`
}

// Resolve runs the attached resolver and returns the matched track.
func (u *UnresolvedTrack) Resolve(ctx context.Context) (*Track, error) {
	if u.Resolver == nil {
		return nil, fmt.Errorf("unresolved track %q has no resolver attached", u.Title)
	}
	track, err := u.Resolver(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve track %q: %w", u.Title, err)
	}
	if track.Requester == "" {
		track.Requester = u.Requester
	}
	return track, nil
}

// ItemKind 队列元素判别标签
type ItemKind int

const (
	ItemTrack ItemKind = iota
	ItemUnresolved
)

// QueueItem is the tagged union stored in the queue: exactly one of Track
// or Unresolved is set, selected by Kind.
type QueueItem struct {
	Kind       ItemKind
	Track      *Track
	Unresolved *UnresolvedTrack
}

// NewTrackItem wraps a resolved track.
func NewTrackItem(t *Track) QueueItem {
	return QueueItem{Kind: ItemTrack, Track: t}
}

// NewUnresolvedItem wraps an unresolved track.
func NewUnresolvedItem(u *UnresolvedTrack) QueueItem {
	return QueueItem{Kind: ItemUnresolved, Unresolved: u}
}

// Valid reports whether the union holds the payload its tag promises.
func (i QueueItem) Valid() bool {
	switch i.Kind {
	case ItemTrack:
		return i.Track != nil
	case ItemUnresolved:
		return i.Unresolved != nil
	default:
		return false
	}
}

// Title 返回任一变体的标题
func (i QueueItem) Title() string {
	switch i.Kind {
	case ItemTrack:
		if i.Track != nil {
			return i.Track.Info.Title
		}
	case ItemUnresolved:
		if i.Unresolved != nil {
			return i.Unresolved.Title
		}
	}
	return ""
}

// Length 返回任一变体的时长（毫秒）
func (i QueueItem) Length() int64 {
	switch i.Kind {
	case ItemTrack:
		if i.Track != nil {
			return i.Track.Info.Length
		}
	case ItemUnresolved:
		if i.Unresolved != nil {
			return i.Unresolved.Length
		}
	}
	return 0
}
