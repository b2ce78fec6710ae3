package teams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
teams:
  sig-storage:
    - alice
    - bob
  sig-node:
    - carol
`

func TestParse(t *testing.T) {
	d, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "sig-storage", d.TeamOf("alice"))
	assert.Equal(t, "sig-node", d.TeamOf("carol"))
	assert.Equal(t, "", d.TeamOf("mallory"))
}

func TestParseDuplicateLoginKeepsFirstTeam(t *testing.T) {
	d, err := Parse([]byte("teams:\n  sig-storage:\n    - alice\n  sig-node:\n    - alice\n"))
	require.NoError(t, err)
	assert.Equal(t, "sig-storage", d.TeamOf("alice"))

	d, err = Parse([]byte("teams:\n  sig-node:\n    - alice\n  sig-storage:\n    - alice\n"))
	require.NoError(t, err)
	assert.Equal(t, "sig-node", d.TeamOf("alice"))
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("teams: [not, a, map]"))
	assert.Error(t, err)
}

func TestParseEmptyFile(t *testing.T) {
	d, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "", d.TeamOf("alice"))
}

func TestSigLabel(t *testing.T) {
	assert.Equal(t, "sig-storage", SigLabel([]string{"approved-alice", "sig-storage", "sig-node"}))
	assert.Equal(t, "", SigLabel([]string{"approved-alice", "lgtm-bob"}))
	assert.Equal(t, "", SigLabel(nil))
}

func TestClassify(t *testing.T) {
	d, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	t.Run("cross team", func(t *testing.T) {
		c := d.Classify("carol", []string{"sig-storage"})
		require.NotNil(t, c.IsCrossTeam)
		assert.True(t, *c.IsCrossTeam)
		assert.Equal(t, "sig-node", *c.ReviewerTeam)
		assert.Equal(t, "sig-storage", *c.PRSigLabel)
	})

	t.Run("same team", func(t *testing.T) {
		c := d.Classify("alice", []string{"sig-storage"})
		require.NotNil(t, c.IsCrossTeam)
		assert.False(t, *c.IsCrossTeam)
	})

	t.Run("unknown reviewer stays tri-state null", func(t *testing.T) {
		c := d.Classify("mallory", []string{"sig-storage"})
		assert.Nil(t, c.ReviewerTeam)
		assert.Nil(t, c.IsCrossTeam)
		require.NotNil(t, c.PRSigLabel)
		assert.Equal(t, "sig-storage", *c.PRSigLabel)
	})

	t.Run("no sig label stays tri-state null", func(t *testing.T) {
		c := d.Classify("alice", []string{"lgtm-bob"})
		assert.Nil(t, c.PRSigLabel)
		assert.Nil(t, c.IsCrossTeam)
		require.NotNil(t, c.ReviewerTeam)
	})

	t.Run("empty directory", func(t *testing.T) {
		c := Empty().Classify("alice", []string{"sig-storage"})
		assert.Nil(t, c.ReviewerTeam)
		assert.Nil(t, c.IsCrossTeam)
	})
}
