// DotMod - Discord moderation decision core
// Derived from DotAgent: https://github.com/dotsetgreg/dotagent
// License: MIT
//
// Copyright (c) 2026 DotAgent contributors

package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dotsetgreg/dotmod/pkg/bus"
	"github.com/dotsetgreg/dotmod/pkg/config"
	"github.com/dotsetgreg/dotmod/pkg/logger"
)

type Manager struct {
	channels     map[string]Channel
	bus          *bus.MessageBus
	dispatchTask *asyncTask
	mu           sync.RWMutex
}

type asyncTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager builds the Discord channel from cfg.
func NewManager(cfg *config.Config, messageBus *bus.MessageBus) (*Manager, error) {
	m := NewEmptyManager(messageBus)

	logger.InfoC("channels", "Initializing channel manager")
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return nil, config.ErrMissingToken
	}
	discord, err := NewDiscordChannel(cfg.Discord, messageBus)
	if err != nil {
		return nil, fmt.Errorf("initialize Discord channel: %w", err)
	}
	m.channels[discord.Name()] = discord
	logger.InfoCF("channels", "Channel initialization completed", map[string]any{
		"enabled_channels": len(m.channels),
	})
	return m, nil
}

// NewEmptyManager returns a manager with no channels registered.
func NewEmptyManager(messageBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      messageBus,
	}
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	if len(m.channels) == 0 {
		m.mu.RUnlock()
		logger.WarnC("channels", "No channels enabled")
		return nil
	}
	channelsCopy := make(map[string]Channel, len(m.channels))
	for name, channel := range m.channels {
		channelsCopy[name] = channel
	}
	m.mu.RUnlock()

	logger.InfoC("channels", "Starting all channels")

	var started []string
	var startErrors []string
	for name, channel := range channelsCopy {
		logger.InfoCF("channels", "Starting channel", map[string]any{"channel": name})
		if err := channel.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			startErrors = append(startErrors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		started = append(started, name)
	}

	if len(startErrors) > 0 {
		for _, name := range started {
			channel := channelsCopy[name]
			if err := channel.Stop(ctx); err != nil {
				logger.WarnCF("channels", "Failed to stop partially-started channel", map[string]any{
					"channel": name,
					"error":   err.Error(),
				})
			}
		}
		return fmt.Errorf("failed to start channels: %s", strings.Join(startErrors, "; "))
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	task := &asyncTask{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	if m.dispatchTask != nil {
		m.dispatchTask.cancel()
	}
	m.dispatchTask = task
	m.mu.Unlock()

	go func() {
		defer close(task.done)
		m.dispatchOutbound(dispatchCtx)
	}()

	logger.InfoCF("channels", "All channels started", map[string]any{
		"count": len(started),
	})
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	task := m.dispatchTask
	m.dispatchTask = nil
	m.mu.Unlock()

	logger.InfoC("channels", "Stopping all channels")

	if task != nil {
		task.cancel()
		<-task.done
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, channel := range m.channels {
		logger.InfoCF("channels", "Stopping channel", map[string]any{
			"channel": name,
		})
		if err := channel.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoC("channels", "All channels stopped")
	return nil
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	logger.InfoC("channels", "Outbound dispatcher started")

	for {
		e, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			logger.InfoC("channels", "Outbound dispatcher stopped")
			return
		}

		m.mu.RLock()
		channel, exists := m.channels[e.Channel]
		m.mu.RUnlock()

		if !exists {
			logger.WarnCF("channels", "Unknown channel for enforcement", map[string]any{
				"channel": e.Channel,
				"kind":    string(e.Kind),
			})
			continue
		}

		if err := channel.Enforce(ctx, e); err != nil {
			enforceFailures.WithLabelValues(e.Channel, string(e.Kind)).Inc()
			logger.ErrorCF("channels", "Error enforcing decision", map[string]any{
				"channel":     e.Channel,
				"kind":        string(e.Kind),
				"decision_id": e.DecisionID,
				"error":       err.Error(),
			})
			continue
		}
		enforced.WithLabelValues(e.Channel, string(e.Kind)).Inc()
	}
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// Discord returns the registered Discord channel, if any.
func (m *Manager) Discord() (*DiscordChannel, bool) {
	ch, ok := m.GetChannel("discord")
	if !ok {
		return nil, false
	}
	d, ok := ch.(*DiscordChannel)
	return d, ok
}

func (m *Manager) GetStatus() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]any)
	for name, channel := range m.channels {
		status[name] = map[string]any{
			"enabled": true,
			"running": channel.IsRunning(),
		}
	}
	return status
}

// AllRunning reports whether at least one channel is registered and every
// channel is running.
func (m *Manager) AllRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.channels) == 0 {
		return false
	}
	for _, channel := range m.channels {
		if !channel.IsRunning() {
			return false
		}
	}
	return true
}

func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}
