// Package basicauth implements the Basic-Auth built-in middleware (spec.md
// §4.6). The teacher has no Basic-Auth middleware (only JWT/OAuth2/API-key);
// this package is grounded on
// original_source/src/middleware/basic_auth/{auth,config,middleware}.rs -
// the Authenticator trait, its Labels/Htpasswd/EnvVar/DockerSecret sources,
// and bcrypt-prefix ("$2a$"/"$2b$"/"$2y$") hash verification - reimplemented
// in the teacher's idiom: a core.Middleware rather than the original's
// handle_request/handle_response trait pair, golang.org/x/crypto/bcrypt in
// place of the original's bcrypt crate.
package basicauth

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"gateway/internal/core"
	"gateway/pkg/errors"
	"gateway/pkg/factory"
)

// ComponentName is the name used to register this component.
const ComponentName = "basic-auth"

const defaultRealm = "Restricted Area"

// Authenticator verifies a username/password pair against one credential
// source. Implementations must treat any hash not prefixed "$2" (bcrypt) as
// unsupported and reject it, per the original's verify_password.
type Authenticator interface {
	Verify(username, password string) bool
}

// LabelAuthenticator holds credentials declared inline via the
// basicAuth.users setting ("user:bcrypt-hash,user2:bcrypt-hash2").
type LabelAuthenticator struct {
	users map[string]string
}

// NewLabelAuthenticator parses the comma-separated "user:hash" pairs from a
// basicAuth.users setting value.
func NewLabelAuthenticator(usersSetting string) *LabelAuthenticator {
	return &LabelAuthenticator{users: parseUserPairs(usersSetting)}
}

func (a *LabelAuthenticator) Verify(username, password string) bool {
	hash, ok := a.users[username]
	if !ok {
		return false
	}
	return verifyPassword(password, hash)
}

// HtpasswdAuthenticator loads "user:bcrypt-hash" pairs from an .htpasswd
// file. Non-bcrypt lines are kept but always fail verification.
type HtpasswdAuthenticator struct {
	users map[string]string
}

// NewHtpasswdAuthenticator reads and parses the file at path.
func NewHtpasswdAuthenticator(path string) (*HtpasswdAuthenticator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("basicauth: open htpasswd file: %w", err)
	}
	defer f.Close()

	users := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		username, hash, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		users[username] = hash
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("basicauth: read htpasswd file: %w", err)
	}
	return &HtpasswdAuthenticator{users: users}, nil
}

func (a *HtpasswdAuthenticator) Verify(username, password string) bool {
	hash, ok := a.users[username]
	if !ok {
		return false
	}
	return verifyPassword(password, hash)
}

// EnvAuthenticator reads "<prefix><username>=<bcrypt-hash>" pairs from the
// process environment.
type EnvAuthenticator struct {
	users map[string]string
}

// NewEnvAuthenticator scans os.Environ() for variables carrying prefix.
func NewEnvAuthenticator(prefix string) *EnvAuthenticator {
	users := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		users[strings.TrimPrefix(k, prefix)] = v
	}
	return &EnvAuthenticator{users: users}
}

func (a *EnvAuthenticator) Verify(username, password string) bool {
	hash, ok := a.users[username]
	if !ok {
		return false
	}
	return verifyPassword(password, hash)
}

// SecretFileAuthenticator reads "user:bcrypt-hash" pairs from a mounted
// Docker secret file, one per line - same wire format as .htpasswd.
type SecretFileAuthenticator struct {
	*HtpasswdAuthenticator
}

// NewSecretFileAuthenticator reads the secret file at path.
func NewSecretFileAuthenticator(path string) (*SecretFileAuthenticator, error) {
	inner, err := NewHtpasswdAuthenticator(path)
	if err != nil {
		return nil, fmt.Errorf("basicauth: read docker secret: %w", err)
	}
	return &SecretFileAuthenticator{HtpasswdAuthenticator: inner}, nil
}

func verifyPassword(password, hash string) bool {
	if !strings.HasPrefix(hash, "$2") {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func parseUserPairs(s string) map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		username, hash, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		users[username] = hash
	}
	return users
}

// Middleware is the Basic-Auth core.Middleware: it rejects requests lacking
// valid Authorization: Basic credentials with a 401 carrying WWW-Authenticate.
type Middleware struct {
	name          string
	realm         string
	authenticator Authenticator
}

// New builds a Basic-Auth middleware instance named name.
func New(name, realm string, authenticator Authenticator) *Middleware {
	if realm == "" {
		realm = defaultRealm
	}
	return &Middleware{name: name, realm: realm, authenticator: authenticator}
}

func (m *Middleware) Name() string { return m.name }

func (m *Middleware) Before(ctx context.Context, req *core.Request) (*core.Request, *core.Response, error) {
	username, password, ok := extractCredentials(req)
	if !ok || !m.authenticator.Verify(username, password) {
		return req, m.unauthorizedResponse(), nil
	}
	return req, nil, nil
}

func (m *Middleware) After(ctx context.Context, resp *core.Response) (*core.Response, error) {
	return resp, nil
}

func (m *Middleware) unauthorizedResponse() *core.Response {
	resp := core.NewResponse(401, []byte("Unauthorized"))
	resp.Header.Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", m.realm))
	return resp
}

func extractCredentials(req *core.Request) (username, password string, ok bool) {
	header := req.Header.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	return username, password, ok
}

// Config mirrors a Middleware Definition's Settings for basic-auth, per the
// source variants the original supports (labels, htpasswd, env, docker
// secret).
type Config struct {
	Realm string
	// Source selects the credential backend: "labels" (default), "htpasswd",
	// "env", or "docker-secret".
	Source      string
	Users       string // "labels" source: "user:hash,user2:hash2"
	HtpasswdPath string
	EnvPrefix   string
	SecretPath  string
}

// ParseConfig builds a Config from a Middleware Definition's Settings map.
func ParseConfig(settings map[string]string) Config {
	return Config{
		Realm:        settings["realm"],
		Source:       settings["source"],
		Users:        settings["users"],
		HtpasswdPath: settings["htpasswdPath"],
		EnvPrefix:    settings["envPrefix"],
		SecretPath:   settings["secretPath"],
	}
}

func buildAuthenticator(cfg Config) (Authenticator, error) {
	switch cfg.Source {
	case "htpasswd":
		return NewHtpasswdAuthenticator(cfg.HtpasswdPath)
	case "env":
		return NewEnvAuthenticator(cfg.EnvPrefix), nil
	case "docker-secret":
		return NewSecretFileAuthenticator(cfg.SecretPath)
	default:
		return NewLabelAuthenticator(cfg.Users), nil
	}
}

// Component adapts Middleware to the teacher's pkg/factory.Component
// lifecycle for the middleware Registry.
type Component struct {
	mw *Middleware
}

// NewComponent creates an uninitialized Basic-Auth component.
func NewComponent() factory.Component {
	return &Component{}
}

func (c *Component) Name() string { return ComponentName }

func (c *Component) Init(parser factory.ConfigParser) error {
	var def struct {
		Name     string
		Settings map[string]string
	}
	if err := parser(&def); err != nil {
		return fmt.Errorf("parse basic-auth config: %w", err)
	}
	cfg := ParseConfig(def.Settings)
	authenticator, err := buildAuthenticator(cfg)
	if err != nil {
		return err
	}
	c.mw = New(def.Name, cfg.Realm, authenticator)
	return nil
}

func (c *Component) Validate() error {
	if c.mw == nil {
		return errors.NewError(errors.ErrorTypeInternal, "basic-auth: not initialized")
	}
	return nil
}

func (c *Component) Middleware() core.Middleware { return c.mw }

var _ factory.Component = (*Component)(nil)
