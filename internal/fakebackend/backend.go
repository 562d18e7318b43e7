// Package fakebackend is an in-process stand-in for the workflow hub API. It
// issues bearer tokens, enforces them with 401/403 the way the real backend
// does, and lets tests revoke tokens or inject failures.
package fakebackend

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           int64
	Name         string
	Email        string
	Role         string
	passwordHash []byte
}

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Message   string    `json:"message"`
	Read      bool      `json:"readStatus"`
	CreatedAt time.Time `json:"createdAt"`
}

type userRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Workflow struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	User        userRef    `json:"user"`
	ApprovedBy  *userRef   `json:"approvedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
}

// Request is one call as the backend saw it.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

type Options struct {
	// NestedLogin answers login with {"token", "user": {...}} instead of the
	// flat shape.
	NestedLogin bool
	NowFunc     func() time.Time
}

type Backend struct {
	opts Options

	mu            sync.Mutex
	users         map[string]*User
	tokens        map[string]int64
	notifications []Notification
	workflows     []Workflow
	nextID        int64
	failNotify    int
	requests      []Request
}

func New(opts Options) *Backend {
	if opts.NowFunc == nil {
		opts.NowFunc = time.Now
	}
	return &Backend{
		opts:   opts,
		users:  make(map[string]*User),
		tokens: make(map[string]int64),
	}
}

// AddUser registers an account. role is stored as given so tests can seed
// roles the console does not recognise.
func (b *Backend) AddUser(email, name, password, role string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(email))
	if _, exists := b.users[key]; exists {
		return User{}, fmt.Errorf("user %q already exists", email)
	}
	b.nextID++
	u := &User{ID: b.nextID, Name: name, Email: key, Role: role, passwordHash: hash}
	b.users[key] = u
	return *u, nil
}

// Notify queues a notification for userID.
func (b *Backend) Notify(userID int64, message string) Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notifyLocked(userID, message)
}

func (b *Backend) notifyLocked(userID int64, message string) Notification {
	b.nextID++
	n := Notification{ID: b.nextID, UserID: userID, Message: message, CreatedAt: b.opts.NowFunc().UTC()}
	b.notifications = append(b.notifications, n)
	return n
}

// RevokeAll invalidates every issued token, as a server restart with a new
// signing key would.
func (b *Backend) RevokeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]int64)
}

// FailNotifications makes the notification list answer with status until
// called again with 0.
func (b *Backend) FailNotifications(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNotify = status
}

func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many calls matched method and path.
func (b *Backend) Count(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (b *Backend) login(email, password string) (*User, string, error) {
	b.mu.Lock()
	u, ok := b.users[strings.ToLower(strings.TrimSpace(email))]
	b.mu.Unlock()
	if !ok {
		return nil, "", errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, "", errInvalidCredentials
	}
	token, err := generateToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	b.mu.Lock()
	b.tokens[token] = u.ID
	b.mu.Unlock()
	return u, token, nil
}

func (b *Backend) userForToken(token string) (*User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.tokens[token]
	if !ok {
		return nil, false
	}
	for _, u := range b.users {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

func (b *Backend) usersWithRole(role string) []*User {
	var out []*User
	for _, u := range b.users {
		if strings.EqualFold(u.Role, role) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func ref(u *User) userRef {
	return userRef{ID: u.ID, Name: u.Name, Email: u.Email, Role: strings.ToUpper(u.Role)}
}

func generateToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
