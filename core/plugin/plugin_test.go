package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"Bt1QLink/config"
	"Bt1QLink/core/link"
	"Bt1QLink/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopStore struct{}

func (nopStore) GetSession(context.Context, string) (string, error) { return "", nil }
func (nopStore) SetSession(context.Context, string, string) error   { return nil }
func (nopStore) DeleteSession(context.Context, string) error        { return nil }
func (nopStore) GetSnapshot(context.Context, string) (*model.PlayerSnapshot, error) {
	return nil, nil
}
func (nopStore) SetSnapshot(context.Context, *model.PlayerSnapshot) error { return nil }
func (nopStore) DeleteSnapshot(context.Context, string) error             { return nil }

// fakePlugin 按调用顺序把事件写入共享日志
type fakePlugin struct {
	name    string
	loadErr error
	log     *[]string
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) Load(*link.Manager) error {
	if p.loadErr != nil {
		return p.loadErr
	}
	*p.log = append(*p.log, "load:"+p.name)
	return nil
}

func (p *fakePlugin) Unload(*link.Manager) error {
	*p.log = append(*p.log, "unload:"+p.name)
	return nil
}

func newTestManager(t *testing.T) *link.Manager {
	t.Helper()
	cfg := &config.Config{
		UserID:     "100000000000000000",
		ClientName: "Bt1QLink/test",
		Nodes: []config.NodeConfig{
			{ID: "main", Host: "127.0.0.1", Port: 2333, Password: "pass"},
		},
		ReconnectDelay: time.Hour,
		ReconnectTries: 3,
	}
	m, err := link.NewManager(cfg, nopStore{}, func(guildID, channelID string, selfMute, selfDeaf bool) error {
		return nil
	})
	require.NoError(t, err)
	return m
}

func TestLoadAllRunsInRegistrationOrder(t *testing.T) {
	m := newTestManager(t)
	var calls []string
	r := NewRegistry()
	r.Register(&fakePlugin{name: "first", log: &calls})
	r.Register(&fakePlugin{name: "second", log: &calls})
	r.Register(&fakePlugin{name: "third", log: &calls})

	require.NoError(t, r.LoadAll(m))
	assert.Equal(t, []string{"load:first", "load:second", "load:third"}, calls)
}

func TestRegisterReplacesSameName(t *testing.T) {
	var calls []string
	r := NewRegistry()
	old := &fakePlugin{name: "dup", log: &calls}
	replacement := &fakePlugin{name: "dup", log: &calls}
	r.Register(old)
	r.Register(replacement)

	assert.Same(t, replacement, r.Get("dup"))
	assert.Nil(t, r.Get("missing"))
}

func TestLoadAllRollsBackOnFirstFailure(t *testing.T) {
	m := newTestManager(t)
	var calls []string
	boom := errors.New("boom")
	r := NewRegistry()
	r.Register(&fakePlugin{name: "first", log: &calls})
	r.Register(&fakePlugin{name: "second", log: &calls})
	r.Register(&fakePlugin{name: "broken", loadErr: boom, log: &calls})
	r.Register(&fakePlugin{name: "never", log: &calls})

	err := r.LoadAll(m)
	require.ErrorIs(t, err, boom)

	// 已加载的逆序回滚，失败之后的不再加载
	assert.Equal(t, []string{
		"load:first", "load:second",
		"unload:second", "unload:first",
	}, calls)
}

func TestUnloadAllReversesOrder(t *testing.T) {
	m := newTestManager(t)
	var calls []string
	r := NewRegistry()
	r.Register(&fakePlugin{name: "a", log: &calls})
	r.Register(&fakePlugin{name: "b", log: &calls})
	require.NoError(t, r.LoadAll(m))

	calls = calls[:0]
	r.UnloadAll(m)
	assert.Equal(t, []string{"unload:b", "unload:a"}, calls)

	// 再次卸载是空操作
	r.UnloadAll(m)
	assert.Equal(t, []string{"unload:b", "unload:a"}, calls)
}
