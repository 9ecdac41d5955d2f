package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storedYAML = `# console configuration
server:
  executable: /opt/dayz/DayZServer # local binary
backup:
  path: /srv/backups
  source: /opt/dayz/mpmissions
events:
  - name: Old
    type: lock
    cron: "0 1 * * *"
http:
  listen: ":9000"
`

func savedEvents() []models.ScheduledEvent {
	return []models.ScheduledEvent{
		{Name: "Daily Restart", ID: "restart", Type: models.TaskRestart, Cron: "0 4 * * *", Enabled: true},
		{Name: "Warn", Type: models.TaskMessage, Cron: "55 3 * * *", Params: []string{"5 minutes"}, Enabled: true},
		{Name: "Hourly Backup", Type: models.TaskBackup, Cron: "@hourly", Enabled: false},
	}
}

func TestStore_SaveEvents_YAMLPreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(storedYAML), 0o640))

	store := NewStore(path)
	require.NoError(t, store.SaveEvents(savedEvents()))

	parser := NewParser()
	cfg, err := parser.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, savedEvents(), cfg.Events)
	assert.Equal(t, ":9000", cfg.HTTP.Listen)
	assert.Equal(t, "/opt/dayz/DayZServer", cfg.Server.Executable)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# local binary")
	assert.NotContains(t, string(raw), "name: Old")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestStore_SaveEvents_YAMLAddsMissingKey(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/console.yaml", []byte("skip_events: true\n"), 0o600))

	store := NewStoreWithFs(fs, "/etc/console.yaml")
	require.NoError(t, store.SaveEvents(savedEvents()[:1]))

	raw, err := afero.ReadFile(fs, "/etc/console.yaml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "skip_events: true\n"))
	assert.Contains(t, string(raw), "events:")
	assert.Contains(t, string(raw), "id: restart")
	assert.NotContains(t, string(raw), "enabled")
}

func TestStore_SaveEvents_NewFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/etc", 0o755))

	store := NewStoreWithFs(fs, "/etc/console.yaml")
	require.NoError(t, store.SaveEvents(nil))

	raw, err := afero.ReadFile(fs, "/etc/console.yaml")
	require.NoError(t, err)
	assert.Equal(t, "events: []\n", string(raw))
}

func TestStore_SaveEvents_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.json")
	content := `{
  "server": {"executable": "/opt/dayz/DayZServer"},
  "backup": {"path": "/srv/backups", "source": "/opt/dayz/mpmissions"},
  "skip_events": true
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store := NewStore(path)
	require.NoError(t, store.SaveEvents(savedEvents()))

	parser := NewParser()
	cfg, err := parser.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, savedEvents(), cfg.Events)
	assert.True(t, cfg.SkipEvents)
}

func TestStore_SaveEvents_InvalidFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/console.yaml", []byte("- just\n- a list\n"), 0o600))

	store := NewStoreWithFs(fs, "/etc/console.yaml")
	err := store.SaveEvents(savedEvents())

	assert.Error(t, err)
	raw, _ := afero.ReadFile(fs, "/etc/console.yaml")
	assert.Equal(t, "- just\n- a list\n", string(raw))
}

// renameFailFs fails every rename.
type renameFailFs struct {
	afero.Fs
}

func (renameFailFs) Rename(_, _ string) error {
	return errors.New("cross-device link")
}

func TestStore_SaveEvents_RenameFailureKeepsOriginal(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/etc/console.yaml", []byte(storedYAML), 0o600))

	store := NewStoreWithFs(renameFailFs{Fs: mem}, "/etc/console.yaml")
	err := store.SaveEvents(savedEvents())

	require.Error(t, err)
	raw, _ := afero.ReadFile(mem, "/etc/console.yaml")
	assert.Equal(t, storedYAML, string(raw))
	entries, _ := afero.ReadDir(mem, "/etc")
	assert.Len(t, entries, 1)
}
