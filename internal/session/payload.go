package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"workflowhub/console/internal/credstore"
)

// parseLoginPayload accepts the shapes the backend has returned over time:
//
//	{"token": "...", "id": 1, "name": "A", "email": "...", "role": "ADMIN"}
//	{"token": "...", "user": {"id": 1, "name": "A", "role": "ADMIN"}}
//	{"access_token": "...", "data": {"userId": "1", "fullName": "A", "role": "admin"}}
func parseLoginPayload(raw []byte, loginEmail string) (Session, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var top map[string]any
	if err := dec.Decode(&top); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	token := firstString(top, "token", "access_token", "accessToken")
	if token == "" {
		return Session{}, ErrMissingCredential
	}

	obj := top
	for _, k := range []string{"user", "data"} {
		if nested, ok := top[k].(map[string]any); ok {
			obj = nested
			break
		}
	}

	p := Profile{
		ID:          firstString(obj, "id", "userId", "uid"),
		DisplayName: firstString(obj, "name", "fullName", "displayName", "username"),
		Email:       firstString(obj, "email"),
	}
	if p.DisplayName == "" {
		p.DisplayName = "User"
	}
	if p.Email == "" {
		p.Email = strings.TrimSpace(loginEmail)
	}

	rawRole := firstString(obj, "role")
	if rawRole == "" {
		rawRole = firstString(top, "role")
	}
	if rawRole == "" {
		p.Role = RoleEmployee
	} else {
		role, err := ParseRole(rawRole)
		if err != nil {
			return Session{}, err
		}
		p.Role = role
	}

	return Session{Credential: token, Profile: p}, nil
}

// firstString returns the first key holding a non-empty string or number.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func encodeEntry(s Session) (credstore.Entry, error) {
	b, err := json.Marshal(s.Profile)
	if err != nil {
		return credstore.Entry{}, fmt.Errorf("encode profile: %w", err)
	}
	return credstore.Entry{Credential: s.Credential, Profile: string(b)}, nil
}

func decodeEntry(e credstore.Entry) (Session, error) {
	if strings.TrimSpace(e.Credential) == "" {
		return Session{}, &MalformedSessionError{Reason: "empty credential"}
	}
	if strings.TrimSpace(e.Profile) == "" {
		return Session{}, &MalformedSessionError{Reason: "empty profile"}
	}
	var p Profile
	if err := json.Unmarshal([]byte(e.Profile), &p); err != nil {
		return Session{}, &MalformedSessionError{Reason: "unparseable profile", Cause: err}
	}
	role, err := ParseRole(string(p.Role))
	if err != nil {
		return Session{}, &MalformedSessionError{Reason: "invalid role", Cause: err}
	}
	p.Role = role
	return Session{Credential: e.Credential, Profile: p}, nil
}
