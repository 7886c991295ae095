package run

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/logger"
	"github.com/spf13/viper"
)

// fileSettings provides pipeline settings from a YAML file through viper, with hot reload.
//
// A change notification only tells subscribers that values may differ; they re-read everything
// through the getters. viper serializes reads against its own reload internally.
type fileSettings struct {
	logger    logger.Logger
	provider  *viper.Viper
	mutex     sync.Mutex
	callbacks []func()
}

// LoadSettings reads the settings file once. Watching starts separately via Watch so that
// subscribers can register callbacks first.
func LoadSettings(configPath string) (*fileSettings, error) {
	provider := viper.New()
	provider.SetConfigFile(configPath)
	if err := provider.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", configPath, err)
	}
	return &fileSettings{
		logger:   logger.WithField(defs.LabelComponent, "Settings"),
		provider: provider,
	}, nil
}

func (settings *fileSettings) GetString(key string) string {
	return settings.provider.GetString(key)
}

func (settings *fileSettings) GetInt(key string) int {
	return settings.provider.GetInt(key)
}

func (settings *fileSettings) GetBool(key string) bool {
	return settings.provider.GetBool(key)
}

func (settings *fileSettings) GetDuration(key string) time.Duration {
	return settings.provider.GetDuration(key)
}

func (settings *fileSettings) OnChange(callback func()) {
	settings.mutex.Lock()
	settings.callbacks = append(settings.callbacks, callback)
	settings.mutex.Unlock()
}

// Watch starts monitoring the settings file for changes
func (settings *fileSettings) Watch() {
	settings.provider.OnConfigChange(func(event fsnotify.Event) {
		settings.logger.Infof("settings file changed: %s", event.Name)
		settings.mutex.Lock()
		callbacks := settings.callbacks
		settings.mutex.Unlock()
		for _, callback := range callbacks {
			callback()
		}
	})
	settings.provider.WatchConfig()
}
