package chain

import (
	"bytes"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	callDataABIJSON = `[
	{"inputs":[{"name":"destination","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"name":"executeTransaction","outputs":[{"name":"","type":"bytes"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"dataEncryptionKey","type":"bytes"}],"name":"setAccountDataEncryptionKey","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"name","type":"string"},{"name":"dataEncryptionKey","type":"bytes"},{"name":"walletAddress","type":"address"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"name":"setAccount","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

	// meta-transaction wallets may nest calls; deeper payloads are ignored
	maxUnwrapDepth = 4
)

var callDataABI = mustParseABI(callDataABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("failed to parse call data ABI: " + err.Error())
	}
	return parsed
}

// Input answers questions about a transaction's call data.
type Input struct {
	data      []byte
	contracts ContractAddresses
}

// ParseInput decodes hex call data. Malformed data yields an empty input.
func ParseInput(callData string, contracts ContractAddresses) Input {
	return Input{data: common.FromHex(strings.TrimSpace(callData)), contracts: contracts}
}

// MethodID returns the 4-byte selector, or nil when there is none.
func (in Input) MethodID() []byte {
	if len(in.data) < 4 {
		return nil
	}
	return in.data[:4]
}

// HasContractCallTo reports whether the call targets the named contract,
// either as the destination of a meta-transaction or as an address argument
// (e.g. an approval granted to the contract).
func (in Input) HasContractCallTo(name Contract) bool {
	target, ok := in.contracts.Address(name)
	if !ok {
		return false
	}
	return callTouches(in.data, common.HexToAddress(target), 0)
}

// RegistersAccountDek reports whether the call registers a data encryption key
// for the given user, directly or through a meta-transaction wallet.
func (in Input) RegistersAccountDek(userAddress string) bool {
	return registersDek(in.data, common.HexToAddress(userAddress), 0)
}

func callTouches(data []byte, target common.Address, depth int) bool {
	if len(data) < 4 {
		return false
	}
	if destination, inner, ok := unwrapMetaTransaction(data); ok {
		if destination == target {
			return true
		}
		if depth < maxUnwrapDepth {
			return callTouches(inner, target, depth+1)
		}
		return false
	}

	padding := make([]byte, 12)
	for offset := 4; offset+32 <= len(data); offset += 32 {
		word := data[offset : offset+32]
		if bytes.Equal(word[:12], padding) && bytes.Equal(word[12:], target.Bytes()) {
			return true
		}
	}
	return false
}

func registersDek(data []byte, user common.Address, depth int) bool {
	if len(data) < 4 {
		return false
	}
	if _, inner, ok := unwrapMetaTransaction(data); ok {
		return depth < maxUnwrapDepth && registersDek(inner, user, depth+1)
	}

	method, err := callDataABI.MethodById(data[:4])
	if err != nil {
		return false
	}
	switch method.Name {
	case "setAccountDataEncryptionKey":
		return true
	case "setAccount":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil || len(args) < 3 {
			return false
		}
		dek, _ := args[1].([]byte)
		wallet, _ := args[2].(common.Address)
		if len(dek) == 0 {
			return false
		}
		return wallet == (common.Address{}) || wallet == user
	default:
		return false
	}
}

func unwrapMetaTransaction(data []byte) (common.Address, []byte, bool) {
	method := callDataABI.Methods["executeTransaction"]
	if !bytes.Equal(data[:4], method.ID) {
		return common.Address{}, nil, false
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 3 {
		return common.Address{}, nil, false
	}
	destination, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, false
	}
	inner, _ := args[2].([]byte)
	return destination, inner, true
}

// EncodeCall packs call data for one of the methods Input understands.
func EncodeCall(method string, args ...any) ([]byte, error) {
	return callDataABI.Pack(method, args...)
}
