// Package worker implements the orchestrator state machine: the three
// concurrent loops (collection, submission, health) that tie collectors,
// the sentiment ensemble, the manipulation detector, and the oracle
// submitter together (spec.md §4.7). Grounded on
// original_source/workers/src/worker.py.
package worker

import "strings"

// tokenNameMap supplements each tracked symbol with its common name
// variants, reproduced from original_source/workers/src/worker.py's
// _get_token_keywords (spec.md §4.7).
var tokenNameMap = map[string][]string{
	"BTC":   {"bitcoin", "btc"},
	"ETH":   {"ethereum", "eth", "ether"},
	"SOL":   {"solana", "sol"},
	"DOGE":  {"dogecoin", "doge"},
	"MATIC": {"polygon", "matic"},
	"LINK":  {"chainlink", "link"},
	"UNI":   {"uniswap", "uni"},
	"AAVE":  {"aave"},
	"CRV":   {"curve", "crv"},
}

// ExpandKeywords returns the search keyword set for a tracked token symbol:
// its cashtag, the bare symbol, and any known name variants.
func ExpandKeywords(token string) []string {
	keywords := []string{"$" + token, token}
	if names, ok := tokenNameMap[strings.ToUpper(token)]; ok {
		keywords = append(keywords, names...)
	}
	return keywords
}
