package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombineOutputJoinsStdoutAndStderr(t *testing.T) {
	assert.Equal(t, "out\nerr", CombineOutput("out", "err"))
}

func TestCombineOutputAvoidsDoubleNewline(t *testing.T) {
	assert.Equal(t, "out\nerr", CombineOutput("out\n", "err"))
}

func TestCombineOutputStdoutOnly(t *testing.T) {
	assert.Equal(t, "out", CombineOutput("out", ""))
}

func TestCombineOutputStderrOnly(t *testing.T) {
	assert.Equal(t, "err", CombineOutput("", "err"))
}

func TestCombineOutputTrimsTrailingWhitespace(t *testing.T) {
	assert.Equal(t, "out", CombineOutput("out  \n\t", ""))
}

func TestCombineOutputEmpty(t *testing.T) {
	assert.Equal(t, "", CombineOutput("", ""))
}
