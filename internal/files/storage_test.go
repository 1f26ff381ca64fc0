package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage_SaveSanitizesAndRemoves(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	rel, size, err := s.Save("01USER", "my photo (1).png", strings.NewReader("pngdata"))
	require.NoError(t, err)
	require.Equal(t, int64(7), size)
	require.Equal(t, "01USER", filepath.Dir(rel))
	require.NotContains(t, filepath.Base(rel), " ")
	require.NotContains(t, filepath.Base(rel), "(")

	f, err := s.Open(rel)
	require.NoError(t, err)
	f.Close()

	require.NoError(t, s.Remove(rel))
	_, err = s.Open(rel)
	require.ErrorIs(t, err, os.ErrNotExist)
}
