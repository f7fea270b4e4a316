// Package store provides persistent, concurrent-safe storage for WordQuizzle
// accounts. Data is snapshotted as a single JSON document after every
// mutation.
package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// PasswordHash is the legacy 32-bit opaque password comparator described by
// the original protocol. It is not a security primitive: it exists so
// existing Database.json snapshots keep comparing equal across
// implementations. It is derived as the first four bytes of a blake2b-256
// digest of the password, giving a reproducible, collision-resistant-enough
// stand-in for the original 32-bit hash.
type PasswordHash [4]byte

// HashPassword derives the legacy comparator for password.
func HashPassword(password string) PasswordHash {
	sum := blake2b.Sum256([]byte(password))
	var h PasswordHash
	copy(h[:], sum[:4])
	return h
}

// User is a registered WordQuizzle account.
type User struct {
	Nickname string
	PwdHash  PasswordHash
	Score    int
	Friends  map[string]struct{}
}

// record is the on-disk shape of a User inside the Database.json snapshot.
type record struct {
	Nickname string   `json:"nickname"`
	PwdHash  string   `json:"pwdHash"`
	Score    int      `json:"score"`
	Friends  []string `json:"friends"`
}

// Store is the in-memory nickname -> User table. Every mutation snapshots
// the full table to disk before returning, under a single mutex; reads use
// the map's own RWMutex-guarded access so concurrent lookups never block on
// each other.
type Store struct {
	mu    sync.RWMutex
	users map[string]*User
	path  string
}

// Open loads path (if it exists) into a new Store. A missing file starts
// with an empty table; it is not an error.
func Open(path string) (*Store, error) {
	s := &Store{users: make(map[string]*User), path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var recs map[string]record
	if err := json.Unmarshal(data, &recs); err != nil {
		return fmt.Errorf("store: parse %s: %w", s.path, err)
	}

	for nick, r := range recs {
		u := &User{
			Nickname: r.Nickname,
			Score:    r.Score,
			Friends:  make(map[string]struct{}, len(r.Friends)),
		}
		raw, err := hex.DecodeString(r.PwdHash)
		if err == nil && len(raw) == len(u.PwdHash) {
			copy(u.PwdHash[:], raw)
		}
		for _, f := range r.Friends {
			u.Friends[f] = struct{}{}
		}
		s.users[nick] = u
	}
	return nil
}

// snapshotLocked serialises the full table and writes it to s.path. Callers
// must hold s.mu for at least reading.
func (s *Store) snapshotLocked() error {
	recs := make(map[string]record, len(s.users))
	for nick, u := range s.users {
		friends := make([]string, 0, len(u.Friends))
		for f := range u.Friends {
			friends = append(friends, f)
		}
		sort.Strings(friends)
		recs[nick] = record{
			Nickname: u.Nickname,
			PwdHash:  hex.EncodeToString(u.PwdHash[:]),
			Score:    u.Score,
			Friends:  friends,
		}
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}
	return nil
}

// ErrNicknameTaken is returned by Register when the nickname already exists.
var ErrNicknameTaken = fmt.Errorf("nickname already taken")

// Register creates a new account. It returns ErrNicknameTaken if nick is
// already registered.
func (s *Store) Register(nick, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[nick]; exists {
		return ErrNicknameTaken
	}

	s.users[nick] = &User{
		Nickname: nick,
		PwdHash:  HashPassword(password),
		Friends:  make(map[string]struct{}),
	}
	return s.snapshotLocked()
}

// Get returns a snapshot copy of the named user, or false if not registered.
func (s *Store) Get(nick string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[nick]
	if !ok {
		return User{}, false
	}
	return copyUser(u), true
}

// CheckPassword reports whether password matches the stored comparator for
// nick. It returns false for unknown nicknames.
func (s *Store) CheckPassword(nick, password string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[nick]
	if !ok {
		return false
	}
	return u.PwdHash == HashPassword(password)
}

// AddScore adds delta (which may be negative) to nick's score and persists
// the result.
func (s *Store) AddScore(nick string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[nick]
	if !ok {
		return fmt.Errorf("store: user %q not found", nick)
	}
	u.Score += delta
	return s.snapshotLocked()
}

// ErrSelfFriend is returned when a and b are the same nickname.
var ErrSelfFriend = fmt.Errorf("cannot friend yourself")

// ErrAlreadyFriends is returned when a and b are already friends.
var ErrAlreadyFriends = fmt.Errorf("already friends")

// ErrUnknownUser is returned when a nickname is not registered.
var ErrUnknownUser = fmt.Errorf("user not found")

// AddFriend makes a and b friends of each other, symmetrically.
func (s *Store) AddFriend(a, b string) error {
	if a == b {
		return ErrSelfFriend
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.users[a]
	if !ok {
		return ErrUnknownUser
	}
	ub, ok := s.users[b]
	if !ok {
		return ErrUnknownUser
	}

	if _, already := ua.Friends[b]; already {
		return ErrAlreadyFriends
	}

	ua.Friends[b] = struct{}{}
	ub.Friends[a] = struct{}{}
	return s.snapshotLocked()
}

// AreFriends reports whether a and b are registered and already friends.
func (s *Store) AreFriends(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ua, ok := s.users[a]
	if !ok {
		return false
	}
	_, ok = ua.Friends[b]
	return ok
}

// Friends returns the sorted friend list of nick.
func (s *Store) Friends(nick string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[nick]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(u.Friends))
	for f := range u.Friends {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func copyUser(u *User) User {
	friends := make(map[string]struct{}, len(u.Friends))
	for f := range u.Friends {
		friends[f] = struct{}{}
	}
	return User{Nickname: u.Nickname, PwdHash: u.PwdHash, Score: u.Score, Friends: friends}
}
