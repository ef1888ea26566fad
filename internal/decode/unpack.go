package decode

import (
	"fmt"
	"math/big"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// tupleField reads a named field off the anonymous struct go-ethereum's ABI
// package constructs at runtime for tuple-typed values (§4.3's "nested
// struct" case — WinnerSelected's Reveal tuple). The component name is
// capitalised to match the exported field name the reflect-built struct
// uses.
func tupleField(tuple any, name string) (any, bool) {
	if len(name) == 0 {
		return nil, false
	}
	r, size := utf8.DecodeRuneInString(name)
	exported := string(unicode.ToUpper(r)) + name[size:]

	v := reflect.ValueOf(tuple)
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	f := v.FieldByName(exported)
	if !f.IsValid() {
		return nil, false
	}
	return f.Interface(), true
}

// decodeIndexed converts topics[1:] into named values per args. Every
// indexed argument used by this indexer's event set is a static type
// (address, bytes32, uintN) so each topic slot maps to exactly one
// argument value without the dynamic-type hashing ambiguity ABI indexing
// introduces for strings/bytes/arrays.
func decodeIndexed(args abi.Arguments, topics []common.Hash) (map[string]any, error) {
	if len(topics) != len(args) {
		return nil, fmt.Errorf("expected %d indexed topics, got %d", len(args), len(topics))
	}
	out := make(map[string]any, len(args))
	for i, a := range args {
		t := topics[i]
		switch a.Type.T {
		case abi.AddressTy:
			out[a.Name] = common.BytesToAddress(t.Bytes())
		case abi.FixedBytesTy, abi.HashTy:
			out[a.Name] = t
		case abi.UintTy, abi.IntTy:
			out[a.Name] = new(big.Int).SetBytes(t.Bytes())
		case abi.BoolTy:
			out[a.Name] = t.Big().Sign() != 0
		default:
			return nil, fmt.Errorf("unsupported indexed type %s for %s", a.Type.String(), a.Name)
		}
	}
	return out, nil
}

// decodeUnindexed unpacks the non-indexed arguments from the log's data
// blob into a name->value map.
func decodeUnindexed(args abi.Arguments, data []byte) (map[string]any, error) {
	out := make(map[string]any, len(args))
	if err := args.UnpackIntoMap(out, data); err != nil {
		return nil, err
	}
	return out, nil
}

func bigIntOf(m map[string]any, key string) (*big.Int, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	b, ok := v.(*big.Int)
	return b, ok
}

func addressOf(m map[string]any, key string) (common.Address, bool) {
	v, ok := m[key]
	if !ok {
		return common.Address{}, false
	}
	a, ok := v.(common.Address)
	return a, ok
}

func bytes32Of(m map[string]any, key string) (common.Hash, bool) {
	v, ok := m[key]
	if !ok {
		return common.Hash{}, false
	}
	switch h := v.(type) {
	case common.Hash:
		return h, true
	case [32]byte:
		return common.Hash(h), true
	default:
		return common.Hash{}, false
	}
}

func uint8Of(m map[string]any, key string) (uint8, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	u, ok := v.(uint8)
	return u, ok
}

func boolOf(m map[string]any, key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
