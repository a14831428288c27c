package provider

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sigv4-gate/internal/pkg/crypto"
	"github.com/prn-tf/sigv4-gate/internal/verify"
)

func TestStaticLookup(t *testing.T) {
	p := NewStatic(map[string]verify.Credential{
		"AKIDEXAMPLE": {
			Secret:  "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
			Regions: []string{"us-east-1"},
		},
	})

	cred, err := p.Lookup(context.Background(), "AKIDEXAMPLE")
	require.NoError(t, err)
	assert.Equal(t, "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", cred.Secret)
	assert.Equal(t, []string{"us-east-1"}, cred.Regions)

	_, err = p.Lookup(context.Background(), "AKIDUNKNOWN")
	assert.ErrorIs(t, err, verify.ErrCredentialNotFound)
}

func TestStaticCopiesInput(t *testing.T) {
	source := map[string]verify.Credential{"AKIDEXAMPLE": {Secret: "original"}}
	p := NewStatic(source)

	source["AKIDEXAMPLE"] = verify.Credential{Secret: "mutated"}

	cred, err := p.Lookup(context.Background(), "AKIDEXAMPLE")
	require.NoError(t, err)
	assert.Equal(t, "original", cred.Secret)
}

func newTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()
	hexKey, err := crypto.GenerateMasterKey()
	require.NoError(t, err)
	enc, err := crypto.NewEncryptorFromHex(hexKey)
	require.NoError(t, err)
	return enc
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	p, err := NewSQLite(context.Background(), SQLiteConfig{Path: ":memory:"}, newTestEncryptor(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSQLiteSaveAndLookup(t *testing.T) {
	p := newTestSQLite(t)
	ctx := context.Background()

	err := p.Save(ctx, "AKIDEXAMPLE", "super-secret", verify.Credential{
		Regions:  []string{"us-east-1", "us-west-2"},
		Services: []string{"s3"},
	}, nil)
	require.NoError(t, err)

	cred, err := p.Lookup(ctx, "AKIDEXAMPLE")
	require.NoError(t, err)
	assert.Equal(t, "super-secret", cred.Secret)
	assert.Equal(t, []string{"us-east-1", "us-west-2"}, cred.Regions)
	assert.Equal(t, []string{"s3"}, cred.Services)
}

func TestSQLiteLookupNotFound(t *testing.T) {
	p := newTestSQLite(t)

	_, err := p.Lookup(context.Background(), "AKIDUNKNOWN")
	assert.ErrorIs(t, err, verify.ErrCredentialNotFound)
}

func TestSQLiteExpiredKey(t *testing.T) {
	p := newTestSQLite(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	err := p.Save(ctx, "AKIDEXPIRED", "secret", verify.Credential{}, &past)
	require.NoError(t, err)

	_, err = p.Lookup(ctx, "AKIDEXPIRED")
	assert.ErrorIs(t, err, verify.ErrCredentialExpired)
}

func TestSQLiteUnscopedKey(t *testing.T) {
	p := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, "AKIDANY", "secret", verify.Credential{}, nil))

	cred, err := p.Lookup(ctx, "AKIDANY")
	require.NoError(t, err)
	assert.Nil(t, cred.Regions)
	assert.Nil(t, cred.Services)
	assert.True(t, cred.Permits("eu-central-1", "execute-api"))
}
