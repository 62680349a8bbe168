package preflight

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/menghanl/release-gen/internal/execute"
	"github.com/menghanl/release-gen/internal/relerr"
	"github.com/menghanl/release-gen/internal/version"
)

type fakeRepo struct {
	branch string
	status []string
}

func (f *fakeRepo) CurrentBranch(context.Context) (string, error) { return f.branch, nil }
func (f *fakeRepo) Status(context.Context) ([]string, error)      { return f.status, nil }

type fakeAuth struct {
	err   error
	calls int
}

func (f *fakeAuth) EnsureLogin(context.Context) error {
	f.calls++
	return f.err
}

type fakeGate struct {
	err   error
	calls int
}

func (f *fakeGate) Check(context.Context) error {
	f.calls++
	return f.err
}

type fixture struct {
	repo        *fakeRepo
	auth        *fakeAuth
	tests, lint *fakeGate
}

func newFixture() *fixture {
	return &fixture{
		repo:  &fakeRepo{branch: "main"},
		auth:  &fakeAuth{},
		tests: &fakeGate{},
		lint:  &fakeGate{},
	}
}

func (f *fixture) validator(t *testing.T) *Validator {
	return NewValidator(f.repo, f.auth, f.tests, f.lint, "main", zaptest.NewLogger(t))
}

func TestBumpType(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"patch", "minor", "major"} {
		got, err := BumpType([]string{ok})
		require.NoError(t, err, ok)
		assert.Equal(t, version.BumpType(ok), got)
	}
	for _, bad := range [][]string{nil, {}, {""}, {"Patch"}, {"MINOR"}, {"mayor"}, {"patch", "minor"}} {
		_, err := BumpType(bad)
		assert.True(t, errors.Is(err, relerr.ErrUnknownBumpType), "%q", bad)
	}
}

func TestValidatePasses(t *testing.T) {
	t.Parallel()
	f := newFixture()
	bump, err := f.validator(t).Validate(context.Background(), []string{"minor"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, version.Minor, bump)
	assert.Equal(t, 1, f.auth.calls)
	assert.Equal(t, 1, f.tests.calls)
	assert.Equal(t, 1, f.lint.calls)
}

func TestValidateStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		args      []string
		setup     func(f *fixture)
		wantKind  error
		wantAuth  int
		wantTests int
	}{
		{
			name:     "bump type",
			args:     []string{"huge"},
			setup:    func(*fixture) {},
			wantKind: relerr.ErrUnknownBumpType,
		},
		{
			name:     "branch",
			args:     []string{"patch"},
			setup:    func(f *fixture) { f.repo.branch = "feature" },
			wantKind: relerr.ErrNotOnReleaseBranch,
		},
		{
			name:     "dirty tree",
			args:     []string{"patch"},
			setup:    func(f *fixture) { f.repo.status = []string{" M package.json"} },
			wantKind: relerr.ErrDirtyWorkingTree,
		},
		{
			name:     "registry",
			args:     []string{"patch"},
			setup:    func(f *fixture) { f.auth.err = relerr.LoginAttemptsExhausted(3) },
			wantKind: relerr.ErrLoginAttemptsExhausted,
			wantAuth: 1,
		},
		{
			name:      "tests",
			args:      []string{"patch"},
			setup:     func(f *fixture) { f.tests.err = errors.New("3 failed") },
			wantKind:  relerr.ErrTestsFailing,
			wantAuth:  1,
			wantTests: 1,
		},
		{
			name:      "lint",
			args:      []string{"patch"},
			setup:     func(f *fixture) { f.lint.err = errors.New("no-unused-vars") },
			wantKind:  relerr.ErrLintFailing,
			wantAuth:  1,
			wantTests: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			tt.setup(f)
			_, err := f.validator(t).Validate(context.Background(), tt.args, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantKind), "got %v", err)
			assert.Equal(t, tt.wantAuth, f.auth.calls)
			assert.Equal(t, tt.wantTests, f.tests.calls)
		})
	}
}

func TestValidateKeepsGateMessage(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.tests.err = errors.New("FAIL src/app.test.ts")
	_, err := f.validator(t).Validate(context.Background(), []string{"patch"}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAIL src/app.test.ts")
}

func TestValidateSkipsGates(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.tests.err = errors.New("would fail")
	f.lint.err = errors.New("would fail")
	_, err := f.validator(t).Validate(context.Background(), []string{"major"}, Options{SkipTest: true, SkipLint: true})
	require.NoError(t, err)
	assert.Zero(t, f.tests.calls)
	assert.Zero(t, f.lint.calls)
}

type recordingRunner struct {
	got execute.Options
	err error
}

func (r *recordingRunner) Run(_ context.Context, opts execute.Options) (string, error) {
	r.got = opts
	return "", r.err
}

func TestCommandGate(t *testing.T) {
	t.Parallel()
	r := &recordingRunner{}
	g := NewCommandGate(`npm run lint -- --max-warnings "0"`, "/repo", r)
	require.NoError(t, g.Check(context.Background()))
	assert.Equal(t, "npm", r.got.Command)
	assert.Equal(t, []string{"run", "lint", "--", "--max-warnings", "0"}, r.got.Args)
	assert.Equal(t, "/repo", r.got.Dir)

	r.err = errors.New("exit status 1")
	assert.Error(t, g.Check(context.Background()))

	assert.Nil(t, NewCommandGate("  ", "/repo", r))
}
