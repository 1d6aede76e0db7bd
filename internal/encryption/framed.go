package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"sabot-go/internal/sabot"
)

var frameMagic = []byte("SABOTENC")

// errNotFramed is returned when decrypting data FramedEncryptor did not write.
var errNotFramed = errors.New("data is not sabot-framed")

// FramedEncryptor prefixes data with a magic header and does no real
// encryption. Archives written with it differ from the plain ledger yet
// restore without keys, which is what tests and throwaway setups need.
type FramedEncryptor struct{}

var _ sabot.Encryptor = FramedEncryptor{}

func (FramedEncryptor) Setup(string) error { return nil }

func (FramedEncryptor) IsConfigured() bool { return true }

func (FramedEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, io.MultiReader(bytes.NewReader(frameMagic), r))
	return err
}

func (FramedEncryptor) Unlock(string) (sabot.DecryptionContext, error) {
	return unframer{}, nil
}

type unframer struct{}

func (unframer) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(frameMagic))
	if err != nil || !bytes.Equal(head, frameMagic) {
		return errNotFramed
	}
	br.Discard(len(frameMagic))
	_, err = io.Copy(w, br)
	return err
}
