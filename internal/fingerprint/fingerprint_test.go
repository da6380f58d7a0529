package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsEmptyLabels(t *testing.T) {
	db, err := parse(strings.NewReader("alice;linux;\nbob;\n"))
	require.NoError(t, err)
	require.Contains(t, db, "alice")
	_, hasLinux := db["alice"]["linux"]
	assert.True(t, hasLinux)
	_, hasEmpty := db["alice"][""]
	assert.True(t, hasEmpty)
	require.Contains(t, db, "bob")
	_, bobEmpty := db["bob"][""]
	assert.True(t, bobEmpty)
}

func TestTallyInsertSkipsUnknownUser(t *testing.T) {
	db, err := parse(strings.NewReader("alice;linux\n"))
	require.NoError(t, err)
	tally := NewTally(db)
	tally.Insert("mallory")
	assert.Empty(t, tally.Report())
}

func TestReportSortedByCountThenLabel(t *testing.T) {
	db, err := parse(strings.NewReader("alice;linux;bsd\nbob;linux\ncarol;windows\n"))
	require.NoError(t, err)
	tally := NewTally(db)
	tally.Insert("alice")
	tally.Insert("bob")
	tally.Insert("carol")

	report := tally.Report()
	require.Len(t, report, 3)
	assert.Equal(t, "linux", report[0].Label)
	assert.Equal(t, 2, report[0].Count)
	// bsd and windows tie at 1; ascending label order breaks the tie.
	assert.Equal(t, "bsd", report[1].Label)
	assert.Equal(t, "windows", report[2].Label)
}
