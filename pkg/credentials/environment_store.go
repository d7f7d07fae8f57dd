package credentials

import (
	"os"
	"time"
)

const (
	EnvCookie    = "WEIBOCRAWLER_COOKIE"
	EnvUserAgent = "WEIBOCRAWLER_USER_AGENT"
)

// EnvironmentStore reads a single read-only account from the environment
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(*Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account under name, or "default"
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	cookie := os.Getenv(EnvCookie)
	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = "default"
	}
	return &Account{
		Name:         name,
		Cookie:       cookie,
		UserAgent:    os.Getenv(EnvUserAgent),
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(string) bool {
	return os.Getenv(EnvCookie) != ""
}
