package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	t.Run("loads initial configuration", func(t *testing.T) {
		path := writeConfigFile(t, `address: ":9090"`)

		manager, err := NewManager(path)
		require.NoError(t, err)
		defer func() {
			_ = manager.Close()
		}()

		cfg := manager.GetConfig()
		require.NotNil(t, cfg)
		assert.Equal(t, ":9090", cfg.Address)
	})

	t.Run("fails on invalid initial configuration", func(t *testing.T) {
		path := writeConfigFile(t, `countriesUrl: "not-a-url"`)

		manager, err := NewManager(path)
		require.Error(t, err)
		assert.Nil(t, manager)
	})

	t.Run("reload picks up file changes", func(t *testing.T) {
		path := writeConfigFile(t, `address: ":9090"`)

		manager, err := NewManager(path)
		require.NoError(t, err)
		defer func() {
			_ = manager.Close()
		}()

		require.NoError(t, os.WriteFile(path, []byte(`address: ":7070"`), 0600))
		require.NoError(t, manager.Reload())

		assert.Equal(t, ":7070", manager.GetConfig().Address)
	})

	t.Run("invalid reload keeps previous configuration", func(t *testing.T) {
		path := writeConfigFile(t, `address: ":9090"`)

		manager, err := NewManager(path)
		require.NoError(t, err)
		defer func() {
			_ = manager.Close()
		}()

		require.NoError(t, os.WriteFile(path, []byte(`countriesUrl: "not-a-url"`), 0600))
		require.Error(t, manager.Reload())

		assert.Equal(t, ":9090", manager.GetConfig().Address, "last known good config stays active")
	})

	t.Run("returned config is a copy", func(t *testing.T) {
		path := writeConfigFile(t, `address: ":9090"`)

		manager, err := NewManager(path)
		require.NoError(t, err)
		defer func() {
			_ = manager.Close()
		}()

		cfg := manager.GetConfig()
		cfg.Address = ":mutated"

		assert.Equal(t, ":9090", manager.GetConfig().Address)
	})
}
