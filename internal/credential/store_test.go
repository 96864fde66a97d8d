package credential

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
)

const (
	walletA = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	walletB = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	walletC = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
)

func writeAccounts(t *testing.T, content string) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return NewFileStore(path)
}

func TestListAccountsKeyedObjectKeepsFileOrder(t *testing.T) {
	store := writeAccounts(t, `{
  "`+walletC+`": {"walletAddress": "`+walletC+`", "token": "t3", "deviceHash": "3"},
  "`+walletA+`": {"walletAddress": "`+walletA+`", "token": "t1", "deviceHash": "1"},
  "`+walletB+`": {"token": "t2", "deviceHash": "2"}
}`)

	accounts, err := store.ListAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	require.Equal(t, walletC, accounts[0].WalletAddress)
	require.Equal(t, walletA, accounts[1].WalletAddress)
	require.Equal(t, walletB, accounts[2].WalletAddress, "wallet falls back to the object key")
	require.Equal(t, "t2", accounts[2].Token)
}

func TestListAccountsArray(t *testing.T) {
	store := writeAccounts(t, `[{"walletAddress": " `+walletA+` ", "token": " t1 ", "deviceHash": "1"}]`)
	accounts, err := store.ListAccounts()
	require.NoError(t, err)
	require.Equal(t, []model.Account{{WalletAddress: walletA, Token: "t1", DeviceHash: "1"}}, accounts)
}

func TestListAccountsConfigErrors(t *testing.T) {
	cases := map[string]string{
		"empty file":      "",
		"malformed json":  `{"x": `,
		"scalar":          `"nope"`,
		"empty object":    `{}`,
		"missing token":   `[{"walletAddress": "` + walletA + `", "deviceHash": "1"}]`,
		"missing hash":    `[{"walletAddress": "` + walletA + `", "token": "t"}]`,
		"non hex address": `[{"walletAddress": "alice", "token": "t", "deviceHash": "1"}]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := writeAccounts(t, content).ListAccounts()
			var cfgErr *model.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}

	_, err := NewFileStore(filepath.Join(t.TempDir(), "nope.json")).ListAccounts()
	var cfgErr *model.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSavePreservesOrder(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "accounts.json"))
	in := []model.Account{
		{WalletAddress: walletB, Token: "t2", DeviceHash: "2"},
		{WalletAddress: walletA, Token: "t1", DeviceHash: "1"},
	}
	require.NoError(t, store.Save(in))

	out, err := store.ListAccounts()
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestGenerateDeviceHash(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		h := GenerateDeviceHash()
		v, err := strconv.ParseUint(h, 10, 32)
		require.NoError(t, err)
		require.Equal(t, strconv.FormatUint(v, 10), h)
		seen[h] = true
	}
	require.Greater(t, len(seen), 45)
}

func TestReadTokensSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.b.c\n\n  d.e.f  \n"), 0o600))
	tokens, err := ReadTokens(path)
	require.NoError(t, err)
	require.Equal(t, []string{"a.b.c", "d.e.f"}, tokens)
}
