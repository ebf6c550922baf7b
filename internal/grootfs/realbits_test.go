package grootfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealModeDirectoryAlwaysExecutable(t *testing.T) {
	assert.Equal(t, uint32(0o755), RealMode(true, false))
}

func TestRealModeRegularFileDefault(t *testing.T) {
	assert.Equal(t, uint32(0o644), RealMode(false, false))
}

func TestRealModeRegularFileExecutable(t *testing.T) {
	assert.Equal(t, uint32(0o755), RealMode(false, true))
}
