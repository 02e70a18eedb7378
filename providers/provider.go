package providers

import (
	"card-token-bridge/bridge"
)

// TokenProvider is the adapter every external tokenization integration implements.
type TokenProvider = bridge.Tokenizer

var (
	_ TokenProvider = (*StripeProvider)(nil)
	_ TokenProvider = (*SandboxProvider)(nil)
	_ TokenProvider = (*Breaker)(nil)
)
