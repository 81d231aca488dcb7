package plugin

import (
	"fmt"

	"Bt1QLink/core/link"
	"Bt1QLink/logger"
)

// Plugin 功能插件接口
// 插件在管理器启动前挂载，通常通过事件总线扩展行为
type Plugin interface {
	// Name 插件唯一标识
	Name() string

	// Load 挂载插件，注册事件监听等
	Load(m *link.Manager) error

	// Unload 卸载插件，释放其持有的资源
	Unload(m *link.Manager) error
}

// Registry 按注册顺序管理插件的加载与卸载
type Registry struct {
	plugins []Plugin
	loaded  []Plugin
}

// NewRegistry 创建插件注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// Register 注册插件，重复的名字覆盖旧插件
func (r *Registry) Register(p Plugin) {
	for i, existing := range r.plugins {
		if existing.Name() == p.Name() {
			r.plugins[i] = p
			return
		}
	}
	r.plugins = append(r.plugins, p)
}

// Get 按名字取插件
func (r *Registry) Get(name string) Plugin {
	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// LoadAll loads every registered plugin in registration order. The first
// failure unloads the ones already loaded and returns.
func (r *Registry) LoadAll(m *link.Manager) error {
	for _, p := range r.plugins {
		if err := p.Load(m); err != nil {
			r.UnloadAll(m)
			return fmt.Errorf("failed to load plugin %s: %w", p.Name(), err)
		}
		r.loaded = append(r.loaded, p)
		logger.Info("plugin loaded", logger.String("plugin", p.Name()))
	}
	return nil
}

// UnloadAll unloads loaded plugins in reverse order. Unload failures are
// logged and do not stop the rest.
func (r *Registry) UnloadAll(m *link.Manager) {
	for i := len(r.loaded) - 1; i >= 0; i-- {
		p := r.loaded[i]
		if err := p.Unload(m); err != nil {
			logger.Warn("plugin unload failed",
				logger.String("plugin", p.Name()),
				logger.ErrorField(err))
		}
	}
	r.loaded = nil
}
