package classifier

// Kind is one variant of the transaction type registry.
type Kind int

const (
	ExchangeContractCall Kind = iota
	EscrowContractCall
	RegisterAccountDek
	ContractCall
	Verification
	EscrowSent
	TokenSent
	Faucet
	EscrowReceived
	TokenReceived
	ExchangeCeloToToken
	ExchangeTokenToCelo
	NftSent
	NftReceived
	Swap
	Any
)

// Registry is the evaluation order of the classifier. Earlier kinds win, so
// moving an entry changes how ambiguous transactions are labelled.
var Registry = []Kind{
	ExchangeContractCall,
	EscrowContractCall,
	RegisterAccountDek,
	ContractCall,
	Verification,
	EscrowSent,
	TokenSent,
	Faucet,
	EscrowReceived,
	TokenReceived,
	ExchangeCeloToToken,
	ExchangeTokenToCelo,
	NftSent,
	NftReceived,
	Swap,
	Any,
}

var kindNames = map[Kind]string{
	ExchangeContractCall: "ExchangeContractCall",
	EscrowContractCall:   "EscrowContractCall",
	RegisterAccountDek:   "RegisterAccountDek",
	ContractCall:         "ContractCall",
	Verification:         "Verification",
	EscrowSent:           "EscrowSent",
	TokenSent:            "TokenSent",
	Faucet:               "Faucet",
	EscrowReceived:       "EscrowReceived",
	TokenReceived:        "TokenReceived",
	ExchangeCeloToToken:  "ExchangeCeloToToken",
	ExchangeTokenToCelo:  "ExchangeTokenToCelo",
	NftSent:              "NftSent",
	NftReceived:          "NftReceived",
	Swap:                 "Swap",
	Any:                  "Any",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Incoming reports whether the counterparty paid for the transaction. Such
// transactions never carry fees and never absorb held ones.
func (k Kind) Incoming() bool {
	switch k {
	case Faucet, EscrowReceived, TokenReceived, NftReceived:
		return true
	default:
		return false
	}
}

// Aggregatable reports whether the kind only pays fees on behalf of the
// transaction that follows it.
func (k Kind) Aggregatable() bool {
	switch k {
	case ExchangeContractCall, EscrowContractCall, RegisterAccountDek, ContractCall:
		return true
	default:
		return false
	}
}
