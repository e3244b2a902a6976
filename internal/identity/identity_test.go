package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	accounts map[string]Account
	calls    map[string]int
}

func (f *fakeUsers) lookup(name string) (Account, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
	acc, ok := f.accounts[name]
	if !ok {
		return Account{}, errors.New("no matching entries in passwd file")
	}
	return acc, nil
}

func newFake() *fakeUsers {
	return &fakeUsers{accounts: map[string]Account{
		"svc":     {Name: "svc", UID: 1001, GID: 1001},
		"web":     {Name: "web", UID: 1002, GID: 100},
		"toor":    {Name: "toor", UID: 0, GID: 0},
		"svc-ops": {Name: "svc-ops", UID: 1003, GID: 1003},
	}}
}

func TestRegisterAllResolvesOncePerUser(t *testing.T) {
	f := newFake()
	r := NewRegistryWithLookup(f.lookup)

	require.NoError(t, r.RegisterAll([]App{
		{Name: "a", User: "svc"},
		{Name: "b", User: "svc"},
		{Name: "c", User: "web"},
	}))
	assert.Equal(t, 1, f.calls["svc"])
	assert.Equal(t, 1, f.calls["web"])

	uid, err := r.UserID("c")
	require.NoError(t, err)
	assert.Equal(t, 1002, uid)
	gid, err := r.GroupID("c")
	require.NoError(t, err)
	assert.Equal(t, 100, gid)
}

func TestRegisterAllRejects(t *testing.T) {
	cases := []struct {
		name string
		user string
		want error
	}{
		{"root", "root", ErrPrivileged},
		{"uid zero", "toor", ErrPrivileged},
		{"shell metachars", "svc;rm", ErrInvalidUsername},
		{"empty", "", ErrInvalidUsername},
		{"unknown", "ghost", ErrUnknownUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistryWithLookup(newFake().lookup)
			err := r.RegisterAll([]App{{Name: "ok", User: "svc"}, {Name: "bad", User: tc.user}})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			_, err = r.UserID("ok")
			assert.ErrorIs(t, err, ErrNotRegistered)
		})
	}
}

func TestHyphenatedNamesAccepted(t *testing.T) {
	r := NewRegistryWithLookup(newFake().lookup)
	require.NoError(t, r.RegisterAll([]App{{Name: "ops", User: "svc-ops"}}))
	uid, err := r.UserID("ops")
	require.NoError(t, err)
	assert.Equal(t, 1003, uid)
}

func TestLookupBeforeRegister(t *testing.T) {
	r := NewRegistryWithLookup(newFake().lookup)
	_, err := r.UserID("a")
	assert.ErrorIs(t, err, ErrNotRegistered)
	_, err = r.GroupID("a")
	assert.ErrorIs(t, err, ErrNotRegistered)
}
