package link

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"Bt1QLink/config"
	"Bt1QLink/model"
)

// ErrNotFound 节点已不认识该会话或玩家（REST 404）
var ErrNotFound = errors.New("node returned 404")

// RestPlayer 节点侧玩家的权威状态（GET players 响应）
type RestPlayer struct {
	GuildID string            `json:"guildId"`
	Track   *model.Track      `json:"track"`
	Volume  int               `json:"volume"`
	Paused  bool              `json:"paused"`
	State   PlayerUpdateState `json:"state"`
	Voice   VoiceServer       `json:"voice"`
	Filters Filters           `json:"filters"`
}

// PlayerUpdate update-player PATCH 请求体，nil 字段不下发
type PlayerUpdate struct {
	EncodedTrack *string      `json:"encodedTrack,omitempty"`
	Position     *int64       `json:"position,omitempty"`
	EndTime      *int64       `json:"endTime,omitempty"`
	Volume       *int         `json:"volume,omitempty"`
	Paused       *bool        `json:"paused,omitempty"`
	Filters      *Filters     `json:"filters,omitempty"`
	Voice        *VoiceServer `json:"voice,omitempty"`
}

// LoadResult loadtracks 响应
type LoadResult struct {
	LoadType string          `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type playlistData struct {
	Info struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"info"`
	Tracks []model.Track `json:"tracks"`
}

// Tracks flattens the result into a track list regardless of load type.
// "empty" yields nil; "error" yields the node-reported exception.
func (r *LoadResult) Tracks() ([]model.Track, error) {
	switch r.LoadType {
	case "track":
		var t model.Track
		if err := json.Unmarshal(r.Data, &t); err != nil {
			return nil, fmt.Errorf("failed to decode track result: %w", err)
		}
		return []model.Track{t}, nil
	case "search":
		var ts []model.Track
		if err := json.Unmarshal(r.Data, &ts); err != nil {
			return nil, fmt.Errorf("failed to decode search result: %w", err)
		}
		return ts, nil
	case "playlist":
		var pl playlistData
		if err := json.Unmarshal(r.Data, &pl); err != nil {
			return nil, fmt.Errorf("failed to decode playlist result: %w", err)
		}
		return pl.Tracks, nil
	case "empty":
		return nil, nil
	case "error":
		var exc TrackException
		_ = json.Unmarshal(r.Data, &exc)
		return nil, fmt.Errorf("node failed to load tracks: %s", exc.Message)
	default:
		return nil, fmt.Errorf("unknown load type %q", r.LoadType)
	}
}

// RestClient 单节点 REST 客户端，所有会话内调用都需要握手分配的 sessionID
type RestClient struct {
	baseURL  string
	password string
	client   *http.Client
}

// NewRestClient 创建节点 REST 客户端
func NewRestClient(cfg config.NodeConfig) *RestClient {
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	return &RestClient{
		baseURL:  fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		password: cfg.Password,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *RestClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to node failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("node returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode node response: %w", err)
		}
	}
	return nil
}

// Version 查询节点版本，可用于探活
func (c *RestClient) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("version request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Players 拉取节点上所有存活玩家
func (c *RestClient) Players(ctx context.Context, sessionID string) ([]RestPlayer, error) {
	var players []RestPlayer
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v4/sessions/%s/players", sessionID), nil, &players)
	if err != nil {
		return nil, err
	}
	return players, nil
}

// UpdatePlayer 下发玩家状态补丁。noReplace 为真时节点在已有曲目播放中不替换。
func (c *RestClient) UpdatePlayer(ctx context.Context, sessionID, guildID string, update PlayerUpdate, noReplace bool) (*RestPlayer, error) {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=%t", sessionID, guildID, noReplace)
	var player RestPlayer
	if err := c.do(ctx, http.MethodPatch, path, update, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

// StopPlayer 显式下发 encodedTrack=null 停止当前曲目
func (c *RestClient) StopPlayer(ctx context.Context, sessionID, guildID string) error {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=false", sessionID, guildID)
	return c.do(ctx, http.MethodPatch, path, json.RawMessage(`{"encodedTrack":null}`), nil)
}

// DestroyPlayer 销毁节点侧玩家
func (c *RestClient) DestroyPlayer(ctx context.Context, sessionID, guildID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v4/sessions/%s/players/%s", sessionID, guildID), nil, nil)
}

// UpdateSession 开启断线恢复并设置超时
func (c *RestClient) UpdateSession(ctx context.Context, sessionID string, resuming bool, timeout time.Duration) error {
	body := map[string]interface{}{
		"resuming": resuming,
		"timeout":  int(timeout.Seconds()),
	}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/v4/sessions/%s", sessionID), body, nil)
}

// LoadTracks 按标识符搜索或加载曲目
func (c *RestClient) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	var result LoadResult
	path := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DecodeTracks 批量把 encoded 载荷还原成曲目元数据
func (c *RestClient) DecodeTracks(ctx context.Context, encoded []string) ([]model.Track, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	var tracks []model.Track
	if err := c.do(ctx, http.MethodPost, "/v4/decodetracks", encoded, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}
