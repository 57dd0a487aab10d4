package buildinfo

import "testing"

import "github.com/stretchr/testify/require"

func TestDisplayStringIncludesVersionAndCommit(t *testing.T) {
	s := DisplayString()
	require.Contains(t, s, releaseVersion.String())
	require.Contains(t, s, gitCommit)
}

func TestCompatibleWithSameMajor(t *testing.T) {
	ok, err := CompatibleWith(releaseVersion.String())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCompatibleWithRejectsMalformedVersion(t *testing.T) {
	_, err := CompatibleWith("not-a-version")
	require.Error(t, err)
}
