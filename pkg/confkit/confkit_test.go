package confkit_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/pkg/confkit"
)

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/absolute/file.yaml", confkit.ResolvePath("/base", "/absolute/file.yaml"))
	assert.Equal(t, "/base/rules/file.yaml", confkit.ResolvePath("/base", "rules/file.yaml"))

	t.Setenv("CONF_DIR", "/env/dir")
	assert.Equal(t, "/env/dir/file.yaml", confkit.ResolvePath("/base", "${CONF_DIR}/file.yaml"))
}

func TestSectionHydrate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("value: 7\n"), 0o644))

	type rules struct{ Value int }
	loader := func(p string) (*rules, error) {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		require.Contains(t, string(data), "7")
		return &rules{Value: 7}, nil
	}

	var s confkit.Section[rules]
	require.NoError(t, s.Hydrate(dir, loader), "empty section is a no-op")
	assert.Nil(t, s.Value)

	s.File = "rules.yaml"
	require.NoError(t, s.Hydrate(dir, loader))
	require.NotNil(t, s.Value)
	assert.Equal(t, 7, s.Value.Value)
	assert.Equal(t, path, s.File, "file resolves to the absolute path")
}
