package domain

// Method names the conversion path that yields more target currency.
type Method string

const (
	MethodTraditional Method = "traditional"
	MethodBitcoin     Method = "bitcoin"
	MethodEqual       Method = "equal"
)

// Pair is a source/target currency pair.
type Pair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Comparison is the result of comparing the traditional rate with the
// Bitcoin-implied rate for one pair and amount.
type Comparison struct {
	Source               string  `json:"source"`
	Target               string  `json:"target"`
	Amount               float64 `json:"amount"`
	TraditionalRate      float64 `json:"traditional_rate"`
	BitcoinRate          float64 `json:"bitcoin_rate"`
	TraditionalAmount    float64 `json:"traditional_amount"`
	BitcoinAmount        float64 `json:"bitcoin_amount"`
	PercentageDifference float64 `json:"percentage_difference"`
	BetterMethod         Method  `json:"better_method"`
	ArbitrageOpportunity bool    `json:"arbitrage_opportunity"`
}
