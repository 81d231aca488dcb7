package link

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"Bt1QLink/config"
	"Bt1QLink/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNodeServer 模拟节点 REST 面，记录收到的请求
type fakeNodeServer struct {
	mu       sync.Mutex
	players  []RestPlayer
	requests []string
	bodies   []string
	srv      *httptest.Server
}

func newFakeNodeServer(t *testing.T, players []RestPlayer) *fakeNodeServer {
	t.Helper()
	f := &fakeNodeServer{players: players}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.bodies = append(f.bodies, string(body))
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPatch && strings.Count(r.URL.Path, "/") == 3:
			// PATCH /v4/sessions/{id}
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/players"):
			_ = json.NewEncoder(w).Encode(f.players)
		case r.URL.Path == "/v4/decodetracks":
			var encoded []string
			_ = json.NewDecoder(r.Body).Decode(&encoded)
			tracks := make([]model.Track, 0, len(encoded))
			for _, enc := range encoded {
				id := strings.TrimPrefix(enc, "enc-")
				tracks = append(tracks, *testTrack(id))
			}
			_ = json.NewEncoder(w).Encode(tracks)
		case r.Method == http.MethodPatch:
			// PATCH /v4/sessions/{id}/players/{guild}
			_, _ = w.Write([]byte(`{"guildId":"g1"}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeNodeServer) nodeConfig(id string) config.NodeConfig {
	u, _ := url.Parse(f.srv.URL)
	port, _ := strconv.Atoi(u.Port())
	return config.NodeConfig{ID: id, Host: u.Hostname(), Port: port, Password: "youshallnotpass"}
}

func (f *fakeNodeServer) sawRequest(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if strings.HasPrefix(req, prefix) {
			return true
		}
	}
	return false
}

// requestBody 返回第一个匹配请求的原始 body
func (f *fakeNodeServer) requestBody(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, req := range f.requests {
		if strings.HasPrefix(req, prefix) {
			return f.bodies[i]
		}
	}
	return ""
}

func newResumeManager(t *testing.T, f *fakeNodeServer, resumeEnabled bool) *Manager {
	t.Helper()
	cfg := &config.Config{
		UserID:         "100000000000000000",
		ClientName:     "Bt1QLink/test",
		Nodes:          []config.NodeConfig{f.nodeConfig("main")},
		ResumeEnabled:  resumeEnabled,
		ReconnectDelay: time.Hour,
		ResumeTimeout:  60 * time.Second,
	}
	m, err := NewManager(cfg, newMemoryStore(), func(guildID, channelID string, selfMute, selfDeaf bool) error {
		return nil
	})
	require.NoError(t, err)
	m.playNextOnEnd = false
	return m
}

func TestHandleReadyPersistsSession(t *testing.T) {
	f := newFakeNodeServer(t, nil)
	m := newResumeManager(t, f, false)
	n := m.Node("main")

	m.handleReady(n, false, "sess-1")

	stored, err := m.store.GetSession(nil, "main")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", stored)
	// 未开启恢复时不应有任何 REST 往返
	assert.False(t, f.sawRequest("PATCH"))
}

func TestHandleReadyEnablesResumingAndFetchesPlayers(t *testing.T) {
	f := newFakeNodeServer(t, nil)
	m := newResumeManager(t, f, true)
	n := m.Node("main")

	m.handleReady(n, false, "sess-1")

	assert.True(t, f.sawRequest("PATCH /v4/sessions/sess-1"))
	assert.True(t, f.sawRequest("GET /v4/sessions/sess-1/players"))
}

func TestResumeRebuildsPlayerFromSnapshot(t *testing.T) {
	track := testTrack("a")
	f := newFakeNodeServer(t, []RestPlayer{{
		GuildID: "g1",
		Track:   track,
		Volume:  70,
		State:   PlayerUpdateState{Position: 30000, Connected: true},
	}})
	m := newResumeManager(t, f, true)
	n := m.Node("main")
	n.mu.Lock()
	n.state = NodeConnected
	n.sessionID = "sess-1"
	n.mu.Unlock()

	require.NoError(t, m.store.SetSnapshot(nil, &model.PlayerSnapshot{
		GuildID:        "g1",
		NodeID:         "main",
		VoiceChannelID: "vc-1",
		TextChannelID:  "tc-1",
		RepeatMode:     string(RepeatQueue),
		CurrentEncoded: "enc-a",
		QueueEncoded:   []string{"enc-b", "enc-c"},
	}))

	var created *Player
	m.bus.OnPlayerCreate(func(p *Player) { created = p })

	m.handleReady(n, true, "sess-1")

	p := m.Player("g1")
	require.NotNil(t, p)
	assert.Same(t, p, created)
	assert.Equal(t, PlayerResuming, p.State())
	assert.Equal(t, RepeatQueue, p.RepeatMode())
	assert.Equal(t, 70, p.Volume())
	assert.Equal(t, int64(30000), p.Position())
	assert.True(t, p.Playing())

	require.NotNil(t, p.Queue().Current())
	assert.Equal(t, "enc-a", p.Queue().Current().Track.Encoded)
	assert.Equal(t, 2, p.Queue().Size())
}

func TestResumeSkipsTrackedGuilds(t *testing.T) {
	f := newFakeNodeServer(t, []RestPlayer{{GuildID: "g1"}})
	m := newResumeManager(t, f, true)
	n := m.Node("main")

	existing := m.trackPlayer(n, PlayerOptions{GuildID: "g1"})
	require.NotNil(t, existing)

	m.handleReady(n, true, "sess-1")

	// 已有玩家不被重建
	assert.Same(t, existing, m.Player("g1"))
}

func TestResumeDeletesIncompleteSnapshot(t *testing.T) {
	f := newFakeNodeServer(t, []RestPlayer{{GuildID: "g1"}})
	m := newResumeManager(t, f, true)
	n := m.Node("main")

	// 缺少语音频道的快照视为过期
	require.NoError(t, m.store.SetSnapshot(nil, &model.PlayerSnapshot{
		GuildID: "g1",
		NodeID:  "main",
	}))

	m.handleReady(n, true, "sess-1")

	assert.Nil(t, m.Player("g1"))
	snapshot, err := m.store.GetSnapshot(nil, "g1")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestResumeWithoutSnapshotSkips(t *testing.T) {
	f := newFakeNodeServer(t, []RestPlayer{{GuildID: "g1"}})
	m := newResumeManager(t, f, true)

	m.handleReady(m.Node("main"), true, "sess-1")

	assert.Nil(t, m.Player("g1"))
}
