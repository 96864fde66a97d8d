package credential

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
)

// Store supplies the ordered account collection a run starts from.
type Store interface {
	ListAccounts() ([]model.Account, error)
}

// FileStore reads accounts.json, either the object keyed by wallet address
// that the setup tool writes or a plain array of records.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (s *FileStore) configError(err error) error {
	return &model.ConfigError{Source: s.Path, Err: err}
}

func (s *FileStore) ListAccounts() ([]model.Account, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, s.configError(err)
	}

	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil, s.configError(errors.New("accounts file is empty"))
	}

	var accounts []model.Account
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &accounts); err != nil {
			return nil, s.configError(fmt.Errorf("failed to unmarshal accounts: %w", err))
		}
	case '{':
		accounts, err = decodeKeyed(trimmed)
		if err != nil {
			return nil, s.configError(fmt.Errorf("failed to unmarshal accounts: %w", err))
		}
	default:
		return nil, s.configError(errors.New("accounts file must hold a JSON object or array"))
	}

	if len(accounts) == 0 {
		return nil, s.configError(errors.New("no accounts found"))
	}

	for idx := range accounts {
		if err := normalizeAccount(&accounts[idx]); err != nil {
			return nil, s.configError(fmt.Errorf("invalid account input at index %d: %w", idx, err))
		}
	}
	return accounts, nil
}

// decodeKeyed walks the object token by token so the file's key order
// survives.
func decodeKeyed(b []byte) ([]model.Account, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var accounts []model.Account
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		var acc model.Account
		if err := dec.Decode(&acc); err != nil {
			return nil, fmt.Errorf("account %q: %w", key, err)
		}
		if strings.TrimSpace(acc.WalletAddress) == "" {
			acc.WalletAddress = key
		}
		accounts = append(accounts, acc)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func normalizeAccount(acc *model.Account) error {
	acc.WalletAddress = strings.TrimSpace(acc.WalletAddress)
	acc.Token = strings.TrimSpace(acc.Token)
	acc.DeviceHash = strings.TrimSpace(acc.DeviceHash)

	switch {
	case acc.WalletAddress == "":
		return errors.New("empty wallet address")
	case !common.IsHexAddress(acc.WalletAddress):
		return fmt.Errorf("wallet address %q is not a hex address", acc.WalletAddress)
	case acc.Token == "":
		return fmt.Errorf("empty token for %s", acc.WalletAddress)
	case acc.DeviceHash == "":
		return fmt.Errorf("empty device hash for %s", acc.WalletAddress)
	}
	return nil
}

// Save writes accounts keyed by wallet address, in slice order.
func (s *FileStore) Save(accounts []model.Account) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, acc := range accounts {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(acc.WalletAddress)
		if err != nil {
			return err
		}
		val, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "    "); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create accounts directory: %w", err)
	}
	return os.WriteFile(s.Path, pretty.Bytes(), 0o600)
}

// GenerateDeviceHash returns the decimal value of the first 32 bits of a
// random UUID, the format the platform's extension registers devices with.
func GenerateDeviceHash() string {
	id := uuid.New()
	hexPart := strings.ReplaceAll(id.String(), "-", "")[:8]
	v, _ := strconv.ParseUint(hexPart, 16, 32)
	return strconv.FormatUint(v, 10)
}
