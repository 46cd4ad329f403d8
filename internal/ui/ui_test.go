package ui

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
)

// withIO feeds text as stdin and captures what the UI prints.
func withIO(t *testing.T, text string) *bytes.Buffer {
	t.Helper()
	oldIn, oldOut := input, output
	buf := &bytes.Buffer{}
	input = bufio.NewReader(strings.NewReader(text))
	output = buf
	t.Cleanup(func() { input, output = oldIn, oldOut })
	return buf
}

func TestReadInt(t *testing.T) {
	withIO(t, "3\nabc\n9\n")

	v, err := ReadInt("n: ", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = ReadInt("n: ", 1, 5)
	assert.ErrorContains(t, err, "invalid number")

	_, err = ReadInt("n: ", 1, 5)
	assert.ErrorContains(t, err, "between 1 and 5")
}

func TestReadYearRange(t *testing.T) {
	withIO(t, "\n2021\n")
	start, end, err := ReadYearRange(2019, 2025)
	require.NoError(t, err)
	assert.Equal(t, 2019, start)
	assert.Equal(t, 2021, end)

	withIO(t, "2022\n2020\n")
	_, _, err = ReadYearRange(2019, 2025)
	assert.Error(t, err)
}

func TestReadIndexAndStat(t *testing.T) {
	withIO(t, "EVI\namplitude\n")
	idx, stat, err := ReadIndexAndStat()
	require.NoError(t, err)
	assert.Equal(t, indices.EVI, idx)
	assert.Equal(t, indices.Amplitude, stat)
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Fields: config.FieldsConfig{IDProperty: "id_talhao"},
		Years:  config.YearsConfig{Start: 2019, End: 2025},
		Store:  config.StoreConfig{Path: filepath.Join(t.TempDir(), "indices.db")},
	}
}

func TestShowMenu_ListFieldsThenExit(t *testing.T) {
	out := withIO(t, "4\n6\n")
	ShowMenu(context.Background(), testConfig(t))

	text := out.String()
	assert.Contains(t, text, "T001")
	assert.Contains(t, text, "T002")
	assert.Contains(t, text, "Exiting...")
}

func TestShowMenu_InvalidChoiceAndEOF(t *testing.T) {
	out := withIO(t, "9\n5\n")
	ShowMenu(context.Background(), testConfig(t))

	text := out.String()
	assert.Contains(t, text, "value must be between 1 and 6")
	assert.Contains(t, text, "No runs found.")
}
