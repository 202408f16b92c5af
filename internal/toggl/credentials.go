package toggl

import (
	"strings"
	"sync"
)

// Credentials holds the API token and the workspace it resolves to. It is
// passed to the Client explicitly; there is no package-level credential.
type Credentials struct {
	token string

	mu          sync.Mutex
	workspaceID int64
}

// NewCredentials returns credentials for token. A non-zero workspaceID pins
// the workspace and skips the identity lookup.
func NewCredentials(token string, workspaceID int64) *Credentials {
	return &Credentials{token: strings.TrimSpace(token), workspaceID: workspaceID}
}

// Token returns the API token or ErrMissingToken.
func (c *Credentials) Token() (string, error) {
	if c == nil || c.token == "" {
		return "", ErrMissingToken
	}
	return c.token, nil
}

// Configured reports whether a token is present.
func (c *Credentials) Configured() bool {
	return c != nil && c.token != ""
}

func (c *Credentials) cachedWorkspace() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspaceID, c.workspaceID != 0
}

func (c *Credentials) setWorkspace(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workspaceID = id
}
