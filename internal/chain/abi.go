package chain

import "github.com/ethereum/go-ethereum/common"

// ABI fragments for the three contracts the bot talks to. Only the methods
// actually invoked are declared.
const (
	// FactoryABI covers token creation on the bonding-curve factory.
	FactoryABI = `[{"type":"function","name":"createNewMeme","stateMutability":"payable","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"}],"outputs":[]}]`

	// TradingHubABI covers buying and selling through the trading hub.
	TradingHubABI = `[{"type":"function","name":"buy","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"minimumAmountOut","type":"uint256"},{"name":"receiver","type":"address"}],"outputs":[]},{"type":"function","name":"sell","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}]`

	// ERC20ABI covers the read-only balance query.
	ERC20ABI = `[{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`
)

// TokenCreatedTopic is the event signature hash of the factory's
// TokenCreated event. topics[1] carries the token address and topics[2] the
// creator, both left-padded to 32 bytes.
var TokenCreatedTopic = common.HexToHash("0x01fb0165fee40718cec1862fc8dd2dbd6fc0fdef7623971ac15ffd2daf21b986")

// AddressFromTopic extracts an address-shaped indexed field: the rightmost
// 20 bytes of the 32-byte topic.
func AddressFromTopic(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes()[12:])
}
