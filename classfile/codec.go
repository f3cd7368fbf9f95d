package classfile

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical options so equal class files encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("classfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal validates and serializes a class file to CBOR bytes.
func Marshal(cf *ClassFile) ([]byte, error) {
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(cf)
}

// Unmarshal deserializes and validates a class file. Decoding failures and
// structural problems both wrap ErrMalformed.
func Unmarshal(data []byte) (*ClassFile, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	var cf ClassFile
	if err := cbor.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	return &cf, nil
}

// MustMarshal is like Marshal but panics on error. Intended for tests and
// fixtures built from literals.
func MustMarshal(cf *ClassFile) []byte {
	b, err := Marshal(cf)
	if err != nil {
		panic(err)
	}
	return b
}
