package link

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"Bt1QLink/logger"
	"Bt1QLink/model"
)

// continueMix implements autoplay: derive a radio-mix query from the track
// that just finished, pick a related track at random and keep playing.
// Every fallback failing leaves the queue ended without a queue-end event.
func (m *Manager) continueMix(p *Player, lastPlayed *model.Track) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if lastPlayed == nil {
		if prev := p.queue.Previous(); prev != nil && prev.Kind == model.ItemTrack {
			lastPlayed = prev.Track
		}
	}

	node := p.Node()
	if node == nil || node.State() != NodeConnected {
		return
	}

	seedID := m.mixSeed(ctx, node, lastPlayed)
	candidates := m.mixCandidates(ctx, node, seedID, lastPlayed)

	// 电台查询失败时退回固定种子再试一次
	if len(candidates) == 0 && seedID != m.cfg.AutoplaySeed {
		candidates = m.mixCandidates(ctx, node, m.cfg.AutoplaySeed, lastPlayed)
	}
	if len(candidates) == 0 {
		logger.Info("mix continuation found no candidates",
			logger.String("guild", p.guildID))
		return
	}

	pick := candidates[rand.Intn(len(candidates))]
	item := model.NewTrackItem(&pick)
	if err := p.queue.Add([]model.QueueItem{item}, -1); err != nil {
		logger.Warn("failed to enqueue mix candidate",
			logger.String("guild", p.guildID),
			logger.ErrorField(err))
		return
	}

	if err := p.PlayCurrent(ctx); err != nil {
		logger.Warn("failed to start mix candidate",
			logger.String("guild", p.guildID),
			logger.ErrorField(err))
	}
}

// mixSeed resolves the identifier the radio mix is derived from: the native
// identifier of the previous track when it has one, else the best search hit
// for its title and author, else the configured default seed.
func (m *Manager) mixSeed(ctx context.Context, n *Node, lastPlayed *model.Track) string {
	if lastPlayed != nil {
		if lastPlayed.Info.SourceName == "youtube" && lastPlayed.Info.Identifier != "" {
			return lastPlayed.Info.Identifier
		}

		query := strings.TrimSpace(lastPlayed.Info.Title + " " + lastPlayed.Info.Author)
		if query != "" {
			result, err := m.LoadTracks(ctx, n, "ytsearch:"+query)
			if err == nil {
				if tracks, err := result.Tracks(); err == nil && len(tracks) > 0 {
					if tracks[0].Info.Identifier != "" {
						return tracks[0].Info.Identifier
					}
				}
			}
		}
	}
	return m.cfg.AutoplaySeed
}

// mixCandidates loads the radio-mix playlist for a seed and filters out the
// track that was just played.
func (m *Manager) mixCandidates(ctx context.Context, n *Node, seedID string, lastPlayed *model.Track) []model.Track {
	if seedID == "" {
		return nil
	}

	mixQuery := fmt.Sprintf("https://www.youtube.com/watch?v=%s&list=RD%s", seedID, seedID)
	result, err := m.LoadTracks(ctx, n, mixQuery)
	if err != nil {
		logger.Warn("mix query failed",
			logger.String("seed", seedID),
			logger.ErrorField(err))
		return nil
	}

	tracks, err := result.Tracks()
	if err != nil {
		logger.Warn("mix result unusable",
			logger.String("seed", seedID),
			logger.ErrorField(err))
		return nil
	}

	var candidates []model.Track
	for _, t := range tracks {
		if lastPlayed != nil && t.Info.URI != "" && t.Info.URI == lastPlayed.Info.URI {
			continue
		}
		candidates = append(candidates, t)
	}
	return candidates
}
