package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/claimrecon/internal/claim"
)

func submit(t *testing.T, db, subject, kind, token string) claim.Claim {
	t.Helper()
	args := []string{"--format", "json", "claims", "submit", "--db", db, "--subject", subject, "--kind", kind}
	if token != "" {
		args = append(args, "--token", token)
	}
	out, err := execute(t, args...)
	require.NoError(t, err, out)

	var c claim.Claim
	decodeData(t, out, &c)
	return c
}

func TestClaimsSubmitAndGet(t *testing.T) {
	db := dbPath(t)

	created := submit(t, db, "user-42", "signup", "tx-1")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, claim.StatusUnconfirmed, created.Status)
	assert.Equal(t, "tx-1", created.VerificationToken)

	out, err := execute(t, "claims", "get", "--db", db, created.ID)
	require.NoError(t, err)
	assert.Contains(t, out, created.ID)
	assert.Contains(t, out, "user-42")
	assert.Contains(t, out, "unconfirmed")
}

func TestClaimsSubmit_Rejections(t *testing.T) {
	db := dbPath(t)
	submit(t, db, "user-42", "signup", "")

	out, err := execute(t, "claims", "submit", "--db", db, "--subject", "user-42", "--kind", "signup")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")

	out, err = execute(t, "claims", "submit", "--db", db, "--kind", "signup")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E001]")
	assert.Contains(t, out, "subjectId")
}

func TestClaimsGet_NotFound(t *testing.T) {
	out, err := execute(t, "--format", "json", "claims", "get", "--db", dbPath(t), "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"code":"E003"`)
}

func TestClaimsList(t *testing.T) {
	db := dbPath(t)
	a := submit(t, db, "u1", "signup", "")
	b := submit(t, db, "u2", "signup", "tx-2")

	out, err := execute(t, "--format", "json", "claims", "list", "--db", db, "--status", "unconfirmed")
	require.NoError(t, err)
	var list claimList
	decodeData(t, out, &list)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, a.ID, list.Claims[0].ID)
	assert.Equal(t, b.ID, list.Claims[1].ID)

	out, err = execute(t, "--format", "json", "claims", "list", "--db", db, "--status", "confirmed")
	require.NoError(t, err)
	decodeData(t, out, &list)
	assert.Zero(t, list.Count)
	assert.NotNil(t, list.Claims)

	out, err = execute(t, "claims", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "u1")
	assert.Contains(t, out, "tx-2")
	assert.Contains(t, out, "2 claim(s)")

	_, err = execute(t, "claims", "list", "--db", db, "--status", "lost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestClaimsAttachToken(t *testing.T) {
	db := dbPath(t)
	c := submit(t, db, "u1", "signup", "")

	out, err := execute(t, "--format", "json", "claims", "attach-token", "--db", db, c.ID, "tx-late")
	require.NoError(t, err, out)
	var updated claim.Claim
	decodeData(t, out, &updated)
	assert.Equal(t, "tx-late", updated.VerificationToken)
	assert.True(t, updated.Eligible())

	out, err = execute(t, "claims", "attach-token", "--db", db, "missing", "tx")
	require.Error(t, err)
	assert.Contains(t, out, "E003")

	out, err = execute(t, "claims", "attach-token", "--db", db, c.ID, "tx-other")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E007")
}

func TestClaims_BoltStore(t *testing.T) {
	db := dbPath(t) + ".bolt"

	out, err := execute(t, "--format", "json", "claims", "submit", "--store", "bolt", "--db", db, "--subject", "u1", "--kind", "signup")
	require.NoError(t, err, out)
	var c claim.Claim
	decodeData(t, out, &c)

	out, err = execute(t, "claims", "get", "--store", "bolt", "--db", db, c.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "u1")
}

func TestClaims_UnknownStoreDriver(t *testing.T) {
	_, err := execute(t, "claims", "list", "--store", "postgres", "--db", dbPath(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
