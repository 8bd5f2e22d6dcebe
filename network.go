package minter

import "github.com/pkg/errors"

func init() {
	MainNetParams.Name = NetworkMainNet
	MainNetParams.DisplayName = "Mainnet"
	MainNetParams.Magic = NetworkMagicMainNet
	MainNetParams.WalletNetworkId = WalletNetworkIdMainNet
	MainNetParams.AddressPrefix = "addr"
	MainNetParams.DelegationPrefix = "stake"
	MainNetParams.BlockfrostUrl = BlockfrostBaseUrlMainnet

	PreProdParams.Name = NetworkPreProd
	PreProdParams.DisplayName = "Preprod Testnet"
	PreProdParams.Magic = NetworkMagicPreProd
	PreProdParams.WalletNetworkId = WalletNetworkIdTestNet
	PreProdParams.AddressPrefix = "addr_test"
	PreProdParams.DelegationPrefix = "stake_test"
	PreProdParams.BlockfrostUrl = BlockfrostBaseUrlPreProd
}

type NetworkParams struct {
	Name             Network
	DisplayName      string
	Magic            NetworkMagic
	WalletNetworkId  int
	AddressPrefix    string
	DelegationPrefix string
	BlockfrostUrl    string
}

var MainNetParams = NetworkParams{}
var PreProdParams = NetworkParams{}

const (
	NetworkMainNet Network = "mainnet"
	NetworkPreProd Network = "preprod"

	// DefaultNetwork is selected for new sessions until a wallet says
	// otherwise.
	DefaultNetwork = NetworkPreProd
)

const (
	BlockfrostBaseUrlMainnet = "https://cardano-mainnet.blockfrost.io/api/v0"
	BlockfrostBaseUrlPreProd = "https://cardano-preprod.blockfrost.io/api/v0"
)

// Wallet network ids as reported by CIP-30 getNetworkId.
const (
	WalletNetworkIdTestNet = 0
	WalletNetworkIdMainNet = 1
)

type Network string

func (n Network) Valid() bool {
	return n == NetworkMainNet || n == NetworkPreProd
}

func (n Network) Validate() (err error) {
	if !n.Valid() {
		err = errors.Wrapf(ErrNetworkInvalid, "'%s'", n)
	}
	return
}

func (n Network) Params() (params *NetworkParams, err error) {
	if err = n.Validate(); err != nil {
		return
	}

	switch n {
	case NetworkMainNet:
		return &MainNetParams, nil
	case NetworkPreProd:
		return &PreProdParams, nil
	}

	return
}

func (n Network) IsMainNet() bool {
	return n == NetworkMainNet
}

// NetworkFromWalletId maps a wallet network id to a network: 1 is mainnet,
// anything else is the test network.
func NetworkFromWalletId(id int) Network {
	if id == WalletNetworkIdMainNet {
		return NetworkMainNet
	}
	return NetworkPreProd
}

type NetworkMagic uint64

const (
	NetworkMagicMainNet NetworkMagic = 764824073
	NetworkMagicPreProd NetworkMagic = 1
)
