package importer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteEndpointProtocols(t *testing.T) {
	cases := []struct {
		url      string
		protocol string
	}{
		{url: "https://github.com/acme/docs.git", protocol: "https"},
		{url: "http://git.example.com/docs", protocol: "http"},
		{url: "ssh://git@github.com/acme/docs.git", protocol: "ssh"},
		{url: "git://git.example.com/docs.git", protocol: "git"},
		{url: "git@github.com:acme/docs.git", protocol: "ssh"},
	}
	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			endpoint, err := remoteEndpoint(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.protocol, endpoint.Protocol)
		})
	}
}

func TestGitProberRefusesLocalRepositories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "internal")
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	for _, repoURL := range []string{dir, "file://" + dir} {
		refs, err := GitProber{}.Probe(context.Background(), repoURL)
		assert.ErrorIs(t, err, ErrLocalRepository, repoURL)
		assert.Empty(t, refs.Branches)
		assert.Empty(t, refs.Tags)
	}
}
