package token

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/bnema/meeting-alertd/internal/security"
)

// Store persists the credential between runs. Load returning (nil, nil)
// means no credential has been saved yet.
type Store interface {
	Load() (*Credential, error)
	Save(*Credential) error
	Clear() error
}

// FileStore keeps the credential encrypted at rest in the state directory.
type FileStore struct {
	path      string
	encryptor *security.Encryptor
}

// NewFileStore creates the state directory if needed and wires up the
// machine-keyed encryptor.
func NewFileStore(stateDir string) (*FileStore, error) {
	if err := os.MkdirAll(stateDir, 0750); err != nil {
		return nil, security.NewCredentialError("init", "failed to create state directory").WithCause(err)
	}

	encryptor, err := security.NewEncryptor(stateDir)
	if err != nil {
		return nil, security.NewCredentialError("init", "failed to initialize encryption").WithCause(err)
	}

	return &FileStore{
		path:      filepath.Join(stateDir, "credential.enc"),
		encryptor: encryptor,
	}, nil
}

func (s *FileStore) Load() (*Credential, error) {
	encrypted, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, security.NewCredentialError("load", "failed to read credential file").WithCause(err)
	}

	decrypted, err := s.encryptor.Decrypt(string(encrypted))
	if err != nil {
		return nil, security.NewCryptoError("credential_decrypt", "failed to decrypt credential").WithCause(err)
	}

	var cred Credential
	if err := json.Unmarshal(decrypted, &cred); err != nil {
		return nil, security.NewCredentialError("load", "invalid credential data").WithCause(err)
	}

	return &cred, nil
}

func (s *FileStore) Save(cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return security.NewCredentialError("save", "failed to marshal credential").WithCause(err)
	}

	encrypted, err := s.encryptor.Encrypt(data)
	if err != nil {
		return security.NewCryptoError("credential_encrypt", "failed to encrypt credential").WithCause(err)
	}

	if err := os.WriteFile(s.path, []byte(encrypted), 0600); err != nil {
		return security.NewCredentialError("save", "failed to write credential file").WithCause(err)
	}

	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return security.NewCredentialError("clear", "failed to remove credential file").WithCause(err)
	}
	return nil
}
