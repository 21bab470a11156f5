// Package credentials persists the signing secrets and the cached browser
// session in a single JSON file readable only by its owner.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/mikequentel/xcli/internal/oauth"
	"github.com/mikequentel/xcli/internal/xerr"
)

const relPath = "xcli/config.json"

// Environment variables that override the file.
const (
	EnvConsumerKey    = "X_CONSUMER_KEY"
	EnvConsumerSecret = "X_CONSUMER_SECRET"
	EnvAccessToken    = "X_ACCESS_TOKEN"
	EnvAccessSecret   = "X_ACCESS_SECRET"
)

// File is the on-disk schema.
type File struct {
	ConsumerKey       string `json:"consumer_key,omitempty"`
	ConsumerSecret    string `json:"consumer_secret,omitempty"`
	AccessToken       string `json:"access_token,omitempty"`
	AccessTokenSecret string `json:"access_token_secret,omitempty"`

	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	ReadAuthToken string `json:"read_auth_token,omitempty"`
	ReadCT0       string `json:"read_ct0,omitempty"`
}

// Cookies are the two browser cookies that authenticate read calls.
type Cookies struct {
	AuthToken string
	CT0       string
}

func (c Cookies) Valid() bool { return c.AuthToken != "" && c.CT0 != "" }

type Store struct {
	Path   string
	Getenv func(string) string
}

// DefaultPath is $XDG_CONFIG_HOME/xcli/config.json. The parent directory is
// created if needed.
func DefaultPath() (string, error) {
	return xdg.ConfigFile(relPath)
}

func New(path string) *Store {
	return &Store{Path: path, Getenv: os.Getenv}
}

// Open returns the store at path, or at DefaultPath when path is empty.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locating config file: %w", err)
		}
		path = p
	}
	return New(path), nil
}

// Load reads the file. A missing file yields an empty File and ok=false.
func (s *Store) Load() (f *File, ok bool, err error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &File{}, false, nil
		}
		return nil, false, err
	}
	f = &File{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, true, fmt.Errorf("parsing %s: %w", s.Path, err)
	}
	return f, true, nil
}

// Save writes f with mode 0600.
func (s *Store) Save(f *File) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file
	return os.Chmod(s.Path, 0o600)
}

func (s *Store) update(fn func(f *File)) error {
	f, _, err := s.Load()
	if err != nil {
		return err
	}
	fn(f)
	return s.Save(f)
}

func (s *Store) getenv(key string) string {
	if s.Getenv == nil {
		return ""
	}
	return strings.TrimSpace(s.Getenv(key))
}

// LoadCredentials returns the signing secrets. Environment variables
// override the file field by field. With neither a file nor any variable it
// fails with ErrNotConfigured; an incomplete set also matches
// ErrInvalidCredentials.
func (s *Store) LoadCredentials() (oauth.Credentials, error) {
	f, exists, err := s.Load()
	if err != nil {
		return oauth.Credentials{}, err
	}
	creds := oauth.Credentials{
		ConsumerKey:       f.ConsumerKey,
		ConsumerSecret:    f.ConsumerSecret,
		AccessToken:       f.AccessToken,
		AccessTokenSecret: f.AccessTokenSecret,
	}
	fromEnv := false
	for _, o := range []struct {
		env string
		dst *string
	}{
		{EnvConsumerKey, &creds.ConsumerKey},
		{EnvConsumerSecret, &creds.ConsumerSecret},
		{EnvAccessToken, &creds.AccessToken},
		{EnvAccessSecret, &creds.AccessTokenSecret},
	} {
		if v := s.getenv(o.env); v != "" {
			*o.dst = v
			fromEnv = true
		}
	}
	if !exists && !fromEnv {
		return creds, fmt.Errorf("%w: run 'xcli setup' first", xerr.ErrNotConfigured)
	}
	if err := creds.Validate(); err != nil {
		return creds, fmt.Errorf("%w: %w (run 'xcli setup' again)", xerr.ErrNotConfigured, err)
	}
	return creds, nil
}

// SaveCredentials stores the four secrets, keeping everything else in the
// file.
func (s *Store) SaveCredentials(c oauth.Credentials) error {
	return s.update(func(f *File) {
		f.ConsumerKey = c.ConsumerKey
		f.ConsumerSecret = c.ConsumerSecret
		f.AccessToken = c.AccessToken
		f.AccessTokenSecret = c.AccessTokenSecret
	})
}

// CacheAccount remembers which account the credentials belong to.
func (s *Store) CacheAccount(userID, username string) error {
	return s.update(func(f *File) {
		f.UserID = userID
		f.Username = username
	})
}

func (s *Store) Account() (userID, username string, err error) {
	f, _, err := s.Load()
	if err != nil {
		return "", "", err
	}
	return f.UserID, f.Username, nil
}

// LoadSessionCookies returns the cached browser session, or ErrNotLoggedIn.
func (s *Store) LoadSessionCookies() (Cookies, error) {
	f, _, err := s.Load()
	if err != nil {
		return Cookies{}, err
	}
	c := Cookies{AuthToken: f.ReadAuthToken, CT0: f.ReadCT0}
	if !c.Valid() {
		return Cookies{}, fmt.Errorf("%w: run 'xcli login' first", xerr.ErrNotLoggedIn)
	}
	return c, nil
}

func (s *Store) SaveSessionCookies(c Cookies) error {
	return s.update(func(f *File) {
		f.ReadAuthToken = c.AuthToken
		f.ReadCT0 = c.CT0
	})
}

// ClearSessionCookies forgets the browser session. A missing file is not
// an error.
func (s *Store) ClearSessionCookies() error {
	f, exists, err := s.Load()
	if err != nil || !exists {
		return err
	}
	f.ReadAuthToken = ""
	f.ReadCT0 = ""
	return s.Save(f)
}
