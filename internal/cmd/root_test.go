package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetInputFlag(t *testing.T) {
	t.Helper()
	fl := rootCmd.Flags().Lookup("input")
	prev := inputFIFO
	prevChanged := fl.Changed
	inputFIFO = ""
	fl.Changed = false
	t.Cleanup(func() {
		inputFIFO = prev
		fl.Changed = prevChanged
	})
}

func TestInputFlagBareAutoCreates(t *testing.T) {
	resetInputFlag(t)
	require.NoError(t, rootCmd.ParseFlags([]string{"-c", "env.yaml", "-i", "-n", "-o", "boot.log"}))

	requested, path := resolveInputFIFO(rootCmd.Flags().Changed("input"), inputFIFO)
	assert.True(t, requested)
	assert.Empty(t, path)
}

func TestInputFlagAttachedValue(t *testing.T) {
	resetInputFlag(t)
	require.NoError(t, rootCmd.ParseFlags([]string{"-c", "env.yaml", "--input=/tmp/cmds.fifo"}))

	requested, path := resolveInputFIFO(rootCmd.Flags().Changed("input"), inputFIFO)
	assert.True(t, requested)
	assert.Equal(t, "/tmp/cmds.fifo", path)
}

func TestInputFlagShortAttachedValue(t *testing.T) {
	resetInputFlag(t)
	require.NoError(t, rootCmd.ParseFlags([]string{"-c", "env.yaml", "-i=/tmp/cmds.fifo"}))

	requested, path := resolveInputFIFO(rootCmd.Flags().Changed("input"), inputFIFO)
	assert.True(t, requested)
	assert.Equal(t, "/tmp/cmds.fifo", path)
}

func TestInputFlagAbsent(t *testing.T) {
	resetInputFlag(t)
	require.NoError(t, rootCmd.ParseFlags([]string{"-c", "env.yaml"}))

	requested, path := resolveInputFIFO(rootCmd.Flags().Changed("input"), inputFIFO)
	assert.False(t, requested)
	assert.Empty(t, path)
}

func TestInputFlagSpaceSeparatedValueFailsLoudly(t *testing.T) {
	resetInputFlag(t)
	// With NoOptDefVal set, a space-separated value does not bind to the
	// flag: -i parses as auto-create and the path is left as a positional
	// argument. The root command takes no positionals, so this mistake
	// must be an error rather than a silently ignored path.
	require.NoError(t, rootCmd.ParseFlags([]string{"-c", "env.yaml", "-i", "/tmp/cmds.fifo"}))
	assert.Equal(t, " ", inputFIFO)

	err := rootCmd.Args(rootCmd, rootCmd.Flags().Args())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/tmp/cmds.fifo")
}
