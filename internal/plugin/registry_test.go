package plugin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, id string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "id: " + id + "\nname: " + id + "\ncommand: /bin/echo\nargs: [\"hi\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(content), 0o644))
}

func TestRegistryInstallAndStart(t *testing.T) {
	root := t.TempDir()
	reg, err := NewRegistry(root)
	require.NoError(t, err)
	defer reg.Close()

	pdir := filepath.Join(root, "echoer")
	writeManifest(t, pdir, "echoer")

	manifest, err := reg.Install(pdir)
	require.NoError(t, err)
	assert.Equal(t, "echoer", manifest.ID)

	_, err = reg.Install(pdir)
	assert.Error(t, err, "second install of the same id must fail AlreadyExists")

	require.NoError(t, reg.Start("echoer"))
	inst, ok := reg.Get("echoer")
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		return inst.Process.State() == StateStopped
	}, 2*time.Second, 10*time.Millisecond, "echo should exit quickly")
}

func TestRegistryUninstallUnknown(t *testing.T) {
	root := t.TempDir()
	reg, err := NewRegistry(root)
	require.NoError(t, err)
	defer reg.Close()

	err = reg.Uninstall("nope")
	assert.Error(t, err)
}
