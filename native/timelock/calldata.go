package timelock

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ErrInvalidCalldata marks payloads shorter than a selector or with undecodable
// arguments.
var ErrInvalidCalldata = errors.New("timelock: invalid calldata")

// Selector returns the first four bytes of keccak256(signature).
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], ethcrypto.Keccak256([]byte(signature))[:4])
	return sel
}

// EncodeCall builds selector || rlp(args). A nil args value encodes an empty
// argument list.
func EncodeCall(signature string, args interface{}) ([]byte, error) {
	sel := Selector(signature)
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := rlp.EncodeToBytes(args)
	if err != nil {
		return nil, fmt.Errorf("timelock: encode %s: %w", signature, err)
	}
	return append(sel[:], encoded...), nil
}

// SplitCall separates the selector from the encoded arguments.
func SplitCall(data []byte) ([4]byte, []byte, error) {
	var sel [4]byte
	if len(data) < 4 {
		return sel, nil, ErrInvalidCalldata
	}
	copy(sel[:], data[:4])
	return sel, data[4:], nil
}

// DecodeArgs decodes RLP arguments into out.
func DecodeArgs(args []byte, out interface{}) error {
	if err := rlp.DecodeBytes(args, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCalldata, err)
	}
	return nil
}
