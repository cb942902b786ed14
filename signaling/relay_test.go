package signaling

import (
	"encoding/json"
	"reading-room/domain"
	"reading-room/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePresence map[domain.UserID]domain.Participant

func (f fakePresence) Participant(connection domain.ConnectionID) (domain.Participant, bool) {
	for _, p := range f {
		if p.ConnectionID == connection {
			return p, true
		}
	}
	return domain.Participant{}, false
}

func (f fakePresence) Member(user domain.UserID) (domain.Participant, bool) {
	p, ok := f[user]
	return p, ok
}

func TestRelay_Validate(t *testing.T) {
	relay := NewRelay(64)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"sdp offer", `{"type":"offer","sdp":"v=0"}`, false},
		{"ice candidate", ` {"candidate":"candidate:1 1 UDP 1 10.0.0.1 5000 typ host"} `, false},
		{"empty", ``, true},
		{"blank", `   `, true},
		{"array", `["offer"]`, true},
		{"string", `"offer"`, true},
		{"truncated object", `{"type":"offer"`, true},
		{"oversized", `{"sdp":"` + strings.Repeat("a", 64) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := relay.Validate(json.RawMessage(tt.payload))
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrValidation)
				return
			}
			req.NoError(err)
		})
	}
}

func TestRelay_Resolve(t *testing.T) {
	relay := NewRelay(0)
	presence := fakePresence{
		"alice": {ConnectionID: "c-alice", UserID: "alice", Role: domain.RoleListener},
		"bob":   {ConnectionID: "c-bob", UserID: "bob", Role: domain.RoleListener},
	}

	t.Run("both present", func(t *testing.T) {
		req := require.New(t)
		route, err := relay.Resolve(presence, "c-alice", "BOB")
		req.NoError(err)
		req.Equal(domain.UserID("alice"), route.From)
		req.Equal(domain.ConnectionID("c-bob"), route.Target.ConnectionID)
	})

	t.Run("target absent", func(t *testing.T) {
		_, err := relay.Resolve(presence, "c-alice", "carol")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("sender absent", func(t *testing.T) {
		_, err := relay.Resolve(presence, "c-ghost", "bob")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("target is sender", func(t *testing.T) {
		_, err := relay.Resolve(presence, "c-alice", "alice")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})
}
