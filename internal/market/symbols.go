package market

import "fmt"

// krakenPairs maps canonical symbols to Kraken's pair notation
var krakenPairs = map[string]string{
	"BTC-USD":  "XBTUSD",
	"ETH-USD":  "ETHUSD",
	"SOL-USD":  "SOLUSD",
	"USDC-USD": "USDCUSD",
	"DOGE-USD": "XDGUSD",
	"XRP-USD":  "XRPUSD",
	"ADA-USD":  "ADAUSD",
	"LINK-USD": "LINKUSD",
}

// coingeckoIDs maps canonical symbols to CoinGecko coin ids
var coingeckoIDs = map[string]string{
	"BTC-USD":  "bitcoin",
	"ETH-USD":  "ethereum",
	"SOL-USD":  "solana",
	"USDC-USD": "usd-coin",
	"DOGE-USD": "dogecoin",
	"XRP-USD":  "ripple",
	"ADA-USD":  "cardano",
	"LINK-USD": "chainlink",
}

// KrakenPair translates a canonical symbol to Kraken notation.
// Unknown symbols fail fast rather than hitting the API with garbage.
func KrakenPair(symbol string) (string, error) {
	pair, ok := krakenPairs[symbol]
	if !ok {
		return "", fmt.Errorf("no kraken pair mapping for symbol %q", symbol)
	}
	return pair, nil
}

// CoinGeckoID translates a canonical symbol to a CoinGecko coin id
func CoinGeckoID(symbol string) (string, error) {
	id, ok := coingeckoIDs[symbol]
	if !ok {
		return "", fmt.Errorf("no coingecko id mapping for symbol %q", symbol)
	}
	return id, nil
}
