package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Wiring(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["schedule"])
	assert.True(t, names["version"])

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	assert.NotNil(t, run.Flags().Lookup("skip-status-check"))
}

func TestRootCommand_RepeatableConfig(t *testing.T) {
	configFiles = nil
	defer func() { configFiles = nil }()

	root := newRootCmd()
	require.NoError(t, root.ParseFlags([]string{"--config", "a.toml", "-c", "b.toml"}))

	assert.Equal(t, []string{"a.toml", "b.toml"}, configFiles)
}

func TestExitError(t *testing.T) {
	cause := errors.New("invalid configuration")
	err := fmt.Errorf("startup: %w", &exitError{code: 2, err: cause})

	var exitErr *exitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "exit code 130", (&exitError{code: 130}).Error())
}
