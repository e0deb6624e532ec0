package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate_HeadlessRequiresTaskName(t *testing.T) {
	err := Config{Title: "t"}.Validate(NativeHeadless)
	require.ErrorIs(t, err, ErrInvalidConfig)

	require.NoError(t, Config{Title: "t"}.Validate(NativeDirect))
	require.NoError(t, Config{Title: "t"}.Validate(InProcess))
	require.NoError(t, Config{TaskName: "sync", Title: "t"}.Validate(NativeHeadless))
}

func TestConfigValidate_Progress(t *testing.T) {
	cfg := Config{Progress: Progress{Current: 5, Max: 3}}
	require.ErrorIs(t, cfg.Validate(InProcess), ErrInvalidConfig)

	cfg.Progress.Indeterminate = true
	require.NoError(t, cfg.Validate(InProcess))

	cfg = Config{Progress: Progress{Current: -1}}
	require.ErrorIs(t, cfg.Validate(InProcess), ErrInvalidConfig)
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, ID(42), id)

	_, err = ParseID("0")
	require.Error(t, err)
	_, err = ParseID("abc")
	require.Error(t, err)
}

func TestStrategyText(t *testing.T) {
	for _, s := range []Strategy{Unspecified, NativeHeadless, NativeDirect, InProcess} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var got Strategy
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}

	_, err := ParseStrategy("background")
	require.Error(t, err)
	assert.Equal(t, "strategy(9)", Strategy(9).String())
}

func TestStopErrors(t *testing.T) {
	boom := errors.New("boom")
	errs := StopErrors{3: boom, 1: ErrNativeExecution}

	assert.Equal(t, []ID{1, 3}, errs.IDs())
	assert.ErrorIs(t, errs, boom)
	assert.ErrorIs(t, errs, ErrNativeExecution)
	assert.Contains(t, errs.Error(), "2 action(s)")

	assert.NoError(t, StopErrors{}.OrNil())
	assert.Error(t, errs.OrNil())
}
