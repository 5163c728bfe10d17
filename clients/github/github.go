// Package github defines the narrow GitHub API surface the classroom
// tooling drives. It is expressed in go-github types so the production
// client satisfies it directly and tests can swap in the mock.
package github

import (
	"context"

	gh "github.com/google/go-github/v66/github"
)

// API is the slice of the GitHub REST API the classroom tooling uses.
// Implementations must be safe for concurrent use; the batch runner
// calls them from multiple workers.
type API interface {
	// GetRepository fetches a single repository by owner and name.
	GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, error)

	// ListRepositoriesByOrg lists every repository in an organization.
	ListRepositoriesByOrg(ctx context.Context, org string) ([]*gh.Repository, error)

	// AddCollaborator invites a user to a repository with the given
	// permission ("pull", "push", "admin").
	AddCollaborator(ctx context.Context, owner, repo, username, permission string) error

	// CreateOrUpdateSecret writes an Actions secret on a repository.
	CreateOrUpdateSecret(ctx context.Context, owner, repo string, secret *gh.EncryptedSecret) error
}
