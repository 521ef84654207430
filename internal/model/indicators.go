package model

// TechnicalInputs are the price-derived indicators of one ticker.
type TechnicalInputs struct {
	Price      float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	MA200      float64
	// BollingerPosition is 0.0 at the lower band and 1.0 at the upper band.
	BollingerPosition float64
}

// FundamentalInputs are balance-sheet and earnings metrics. Zero P/E values mean unknown.
type FundamentalInputs struct {
	PE             float64 `yaml:"pe"`
	MedianPE       float64 `yaml:"median_pe"`
	EarningsGrowth float64 `yaml:"earnings_growth"`
	MarginTrend    float64 `yaml:"margin_trend"`
	// HealthRisk flags a liquidity or leverage problem.
	HealthRisk bool `yaml:"health_risk"`
}

// SentimentInputs summarise news flow and unusual trading activity.
type SentimentInputs struct {
	// NewsPolarity is the net polarity of recent news in [-1, 1].
	NewsPolarity float64 `yaml:"news_polarity"`
	NewsCount    int     `yaml:"news_count"`
	Anomaly      bool    `yaml:"anomaly"`
}

// IndicatorSnapshot holds every input the normalizer reads for one ticker in one cycle.
type IndicatorSnapshot struct {
	Ticker       string
	Technical    TechnicalInputs
	Fundamentals *FundamentalInputs
	Sentiment    *SentimentInputs
	// Volatility is the annualized standard deviation of daily returns.
	Volatility float64
}
