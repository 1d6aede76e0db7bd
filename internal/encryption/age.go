package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"filippo.io/age/armor"

	"sabot-go/internal/config"
	"sabot-go/internal/sabot"
)

// ErrAlreadyConfigured is returned by Setup when a key pair exists.
var ErrAlreadyConfigured = errors.New("encryption keys already exist")

// AgeEncryptor seals archive snapshots for an X25519 recipient. Sealing
// reads only the public key, so archives are written unattended. The
// identity is kept scrypt-sealed under a passphrase and is needed only to
// restore.
//
// Output is ASCII-armored.
type AgeEncryptor struct {
	keys keyFiles
}

var _ sabot.Encryptor = (*AgeEncryptor)(nil)

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{keys: keyFiles{recipient: cfg.PublicKeyPath, identity: cfg.PrivateKeyPath}}
}

// keyFiles is the on-disk key pair: a plaintext recipient line and an
// identity sealed with a passphrase.
type keyFiles struct {
	recipient string
	identity  string
}

func (k keyFiles) exist() bool {
	for _, p := range []string{k.recipient, k.identity} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func (k keyFiles) write(id *age.X25519Identity, passphrase string) error {
	lock, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("deriving passphrase key: %w", err)
	}
	sealed, err := seal([]byte(id.String()+"\n"), lock)
	if err != nil {
		return fmt.Errorf("sealing identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(k.identity), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(k.identity, sealed, 0600); err != nil {
		return fmt.Errorf("saving identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.recipient), 0700); err != nil {
		os.Remove(k.identity)
		return err
	}
	if err := os.WriteFile(k.recipient, []byte(id.Recipient().String()+"\n"), 0644); err != nil {
		os.Remove(k.identity)
		return fmt.Errorf("saving recipient: %w", err)
	}
	return nil
}

func (k keyFiles) readRecipient() (age.Recipient, error) {
	data, err := os.ReadFile(k.recipient)
	if err != nil {
		return nil, err
	}
	rs, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", k.recipient, err)
	}
	if len(rs) == 0 {
		return nil, fmt.Errorf("%s holds no recipient", k.recipient)
	}
	return rs[0], nil
}

func (k keyFiles) readIdentity(passphrase string) (age.Identity, error) {
	sealed, err := os.ReadFile(k.identity)
	if err != nil {
		return nil, err
	}
	unlock, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase key: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(sealed), unlock)
	if err != nil {
		return nil, fmt.Errorf("opening identity (wrong passphrase?): %w", err)
	}
	ids, err := age.ParseIdentities(r)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s holds no identity", k.identity)
	}
	return ids[0], nil
}

func seal(plain []byte, to age.Recipient) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, to)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Setup generates the key pair. Existing keys are never replaced: archives
// sealed for them would become unreadable.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}
	if e.keys.exist() {
		return ErrAlreadyConfigured
	}
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	return e.keys.write(id, passphrase)
}

func (e *AgeEncryptor) IsConfigured() bool { return e.keys.exist() }

// Encrypt streams r to w as an armored age file.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	to, err := e.keys.readRecipient()
	if err != nil {
		return fmt.Errorf("reading recipient: %w", err)
	}

	aw := armor.NewWriter(w)
	ew, err := age.Encrypt(aw, to)
	if err != nil {
		return fmt.Errorf("starting age stream: %w", err)
	}
	if _, err := io.Copy(ew, r); err != nil {
		return fmt.Errorf("sealing snapshot: %w", err)
	}
	if err := ew.Close(); err != nil {
		return fmt.Errorf("closing age stream: %w", err)
	}
	return aw.Close()
}

// Unlock opens the sealed identity with passphrase.
func (e *AgeEncryptor) Unlock(passphrase string) (sabot.DecryptionContext, error) {
	id, err := e.keys.readIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	return unlockedKey{id}, nil
}

// unlockedKey opens armored and binary age files.
type unlockedKey struct {
	id age.Identity
}

var _ sabot.DecryptionContext = unlockedKey{}

func (k unlockedKey) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, _ := br.Peek(len(armor.Header)); string(head) == armor.Header {
		src = armor.NewReader(br)
	}

	plain, err := age.Decrypt(src, k.id)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	return nil
}
