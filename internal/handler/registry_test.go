package handler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosprados/domino/internal/lifecycle"
	"github.com/carlosprados/domino/internal/registration"
)

func testRegistry() (*Registry, Handlers) {
	hs := Handlers{
		Executable: NewExecutable(&mockPlacer{}, staticIDs{}, &mockProcs{}, immediate, nil),
		Runtime:    NewRuntime(&mockPlacer{}, staticIDs{}, &mockProcs{}, staticRuntimes{"java": {Name: "java", Binary: "java"}}, immediate, nil),
		Service:    NewService(&mockPlacer{}, staticIDs{}, &mockAdapter{}),
		Docker:     NewDocker(&mockEngine{}),
	}
	return NewRegistry(hs), hs
}

func TestRegistryDispatch(t *testing.T) {
	r, hs := testRegistry()
	cases := []struct {
		source, mode string
		want         lifecycle.Handler
	}{
		{"filesystem", "executable", hs.Executable},
		{"FILESYSTEM", "Runtime", hs.Runtime},
		{"FileSystem", "SERVICE", hs.Service},
		{"docker", "standard", hs.Docker},
		{"Docker", "STANDARD", hs.Docker},
	}
	for _, tc := range cases {
		got, err := r.Lookup("app", tc.source, tc.mode)
		require.NoError(t, err, "%s/%s", tc.source, tc.mode)
		assert.Same(t, tc.want, got, "%s/%s", tc.source, tc.mode)
	}
}

func TestRegistryUnsupported(t *testing.T) {
	r, _ := testRegistry()
	for _, pair := range [][2]string{
		{"docker", "executable"},
		{"docker", "runtime"},
		{"docker", "service"},
		{"filesystem", "standard"},
		{"ftp", "executable"},
		{"filesystem", "cron"},
	} {
		_, err := r.Lookup("app", pair[0], pair[1])
		var ume *UnsupportedDeploymentModeError
		require.ErrorAs(t, err, &ume, "%v", pair)
		assert.Equal(t, "app", ume.App)
		assert.Equal(t, pair[0], ume.Source)
		assert.Equal(t, pair[1], ume.Mode)
	}
}

func TestRegistryVerify(t *testing.T) {
	r, _ := testRegistry()
	ok := []*registration.App{
		{Name: "a", Source: registration.Source{Type: registration.SourceFilesystem}, Execution: registration.Execution{Handler: registration.ModeExecutable}},
		{Name: "b", Source: registration.Source{Type: registration.SourceFilesystem}, Runtime: "java", Execution: registration.Execution{Handler: registration.ModeRuntime}},
		{Name: "c", Source: registration.Source{Type: registration.SourceDocker}, Execution: registration.Execution{Handler: registration.ModeStandard}},
	}
	require.NoError(t, r.Verify(ok))

	bad := append(ok,
		&registration.App{Name: "d", Source: registration.Source{Type: registration.SourceDocker}, Execution: registration.Execution{Handler: registration.ModeService}},
		&registration.App{Name: "e", Source: registration.Source{Type: registration.SourceFilesystem}, Runtime: "python", Execution: registration.Execution{Handler: registration.ModeRuntime}},
	)
	err := r.Verify(bad)
	require.Error(t, err)
	var ume *UnsupportedDeploymentModeError
	assert.True(t, errors.As(err, &ume))
	assert.Equal(t, "d", ume.App)
	assert.ErrorIs(t, err, registration.ErrRuntimeNotRegistered)
}
