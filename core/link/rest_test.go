package link

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"Bt1QLink/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRestClient 把 RestClient 指向 httptest 服务
func newTestRestClient(t *testing.T, handler http.HandlerFunc) *RestClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return NewRestClient(config.NodeConfig{
		ID:       "test",
		Host:     u.Hostname(),
		Port:     port,
		Password: "youshallnotpass",
	})
}

func TestUpdatePlayerRequestShape(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotAuth string
	var gotBody []byte
	client := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"guildId":"g1","volume":100}`))
	})

	encoded := "enc-a"
	volume := 80
	player, err := client.UpdatePlayer(context.Background(), "sess", "g1", PlayerUpdate{
		EncodedTrack: &encoded,
		Volume:       &volume,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "g1", player.GuildID)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/v4/sessions/sess/players/g1", gotPath)
	assert.Equal(t, "noReplace=true", gotQuery)
	assert.Equal(t, "youshallnotpass", gotAuth)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "enc-a", body["encodedTrack"])
	assert.Equal(t, float64(80), body["volume"])
	// 未设置的指针字段不应出现
	_, ok := body["paused"]
	assert.False(t, ok)
}

func TestStopPlayerSendsExplicitNull(t *testing.T) {
	var gotBody string
	client := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.StopPlayer(context.Background(), "sess", "g1"))
	assert.JSONEq(t, `{"encodedTrack":null}`, gotBody)
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	client := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.Players(context.Background(), "sess")
	assert.ErrorIs(t, err, ErrNotFound)

	err = client.DestroyPlayer(context.Background(), "sess", "g1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadTracksEscapesIdentifier(t *testing.T) {
	var gotIdentifier string
	client := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotIdentifier = r.URL.Query().Get("identifier")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"loadType":"search","data":[{"encoded":"enc-a","info":{"identifier":"a","title":"A"}}]}`))
	})

	result, err := client.LoadTracks(context.Background(), "ytsearch:hello world & more")
	require.NoError(t, err)
	assert.Equal(t, "ytsearch:hello world & more", gotIdentifier)

	tracks, err := result.Tracks()
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "enc-a", tracks[0].Encoded)
}

func TestLoadResultTracks(t *testing.T) {
	cases := []struct {
		name     string
		loadType string
		data     string
		want     int
		wantErr  bool
	}{
		{"single track", "track", `{"encoded":"enc-a","info":{"title":"A"}}`, 1, false},
		{"playlist", "playlist", `{"info":{"name":"mix"},"tracks":[{"encoded":"enc-a","info":{}},{"encoded":"enc-b","info":{}}]}`, 2, false},
		{"empty", "empty", `{}`, 0, false},
		{"error", "error", `{"message":"video unavailable","severity":"common"}`, 0, true},
		{"unknown", "mystery", `{}`, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := &LoadResult{LoadType: tc.loadType, Data: json.RawMessage(tc.data)}
			tracks, err := result.Tracks()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, tracks, tc.want)
		})
	}
}

func TestDecodeTracks(t *testing.T) {
	client := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/decodetracks", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `["enc-a","enc-b"]`, string(data))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"encoded":"enc-a","info":{"title":"A"}},{"encoded":"enc-b","info":{"title":"B"}}]`))
	})

	tracks, err := client.DecodeTracks(context.Background(), []string{"enc-a", "enc-b"})
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "A", tracks[0].Info.Title)

	// 空列表不发请求
	tracks, err = client.DecodeTracks(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, tracks)
}

func TestUpdateSessionBody(t *testing.T) {
	var gotPath, gotBody string
	client := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, client.UpdateSession(context.Background(), "sess", true, 60*time.Second))
	assert.Equal(t, "/v4/sessions/sess", gotPath)
	assert.JSONEq(t, `{"resuming":true,"timeout":60}`, gotBody)
}

func TestVersionProbe(t *testing.T) {
	client := newTestRestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/version") {
			_, _ = w.Write([]byte("4.0.8"))
			return
		}
		http.NotFound(w, r)
	})

	version, err := client.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4.0.8", version)
}
