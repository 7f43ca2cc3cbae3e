package web3

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// oracleABIJSON covers the two entry points the submitter calls (spec.md
// §4.6): updateSentiment for a single token and batchUpdateSentiment for
// up to the contract's batch cap.
const oracleABIJSON = `[
  {"inputs":[{"internalType":"string","name":"token","type":"string"},{"internalType":"uint256","name":"score","type":"uint256"},{"internalType":"uint256","name":"volume","type":"uint256"},{"internalType":"bytes32","name":"sourceHash","type":"bytes32"}],"name":"updateSentiment","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"string[]","name":"tokens","type":"string[]"},{"internalType":"uint256[]","name":"scores","type":"uint256[]"},{"internalType":"uint256[]","name":"volumes","type":"uint256[]"},{"internalType":"bytes32[]","name":"sourceHashes","type":"bytes32[]"}],"name":"batchUpdateSentiment","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var oracleABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		panic(fmt.Errorf("web3: parse oracle ABI: %w", err))
	}
	oracleABI = parsed
}
