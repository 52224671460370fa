package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Refs is the advertised state of a remote repository.
type Refs struct {
	DefaultBranch string
	Branches      []string
	Tags          []string
}

// Prober lists the refs of a remote repository.
type Prober interface {
	Probe(ctx context.Context, repoURL string) (Refs, error)
}

// ErrLocalRepository is returned for repository URLs that resolve to the
// server's own filesystem.
var ErrLocalRepository = errors.New("local repositories cannot be imported")

// remoteEndpoint parses repoURL and refuses the file transport, which go-git
// also selects for bare paths.
func remoteEndpoint(repoURL string) (*transport.Endpoint, error) {
	endpoint, err := transport.NewEndpoint(repoURL)
	if err != nil {
		return nil, fmt.Errorf("parse repository url: %w", err)
	}
	if endpoint.Protocol == "file" {
		return nil, ErrLocalRepository
	}
	return endpoint, nil
}

// GitProber lists refs over the network transports go-git supports without
// cloning.
type GitProber struct {
	Timeout time.Duration
}

func (p GitProber) Probe(ctx context.Context, repoURL string) (Refs, error) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return Refs{}, errors.New("repository url is required")
	}
	if _, err := remoteEndpoint(repoURL); err != nil {
		return Refs{}, err
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{repoURL},
	})
	references, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return Refs{}, fmt.Errorf("list remote refs: %w", err)
	}
	return refsFromReferences(references), nil
}

func refsFromReferences(references []*plumbing.Reference) Refs {
	var refs Refs
	for _, ref := range references {
		name := ref.Name()
		switch {
		case name == plumbing.HEAD:
			if ref.Type() == plumbing.SymbolicReference && ref.Target().IsBranch() {
				refs.DefaultBranch = ref.Target().Short()
			}
		case name.IsBranch():
			refs.Branches = append(refs.Branches, name.Short())
		case name.IsTag():
			short := name.Short()
			if strings.HasSuffix(short, "^{}") {
				continue
			}
			refs.Tags = append(refs.Tags, short)
		}
	}
	sort.Strings(refs.Branches)
	sort.Strings(refs.Tags)
	if refs.DefaultBranch == "" {
		for _, candidate := range []string{"main", "master"} {
			if contains(refs.Branches, candidate) {
				refs.DefaultBranch = candidate
				break
			}
		}
	}
	return refs
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
