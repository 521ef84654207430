package collector

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"PortfolioSentinel/internal/model"
)

// TickerFacts is the hand-maintained fundamental and sentiment data of one ticker.
type TickerFacts struct {
	Fundamentals *model.FundamentalInputs `yaml:"fundamentals"`
	Sentiment    *model.SentimentInputs   `yaml:"sentiment"`
}

// FactSource supplies the optional fundamental and sentiment sections.
type FactSource interface {
	Facts(ticker string) (TickerFacts, bool)
}

// FileFacts is a FactSource read from a YAML file keyed by ticker.
type FileFacts struct {
	tickers map[string]TickerFacts
}

// LoadFacts reads a facts file. A missing file yields an empty source.
func LoadFacts(path string) (*FileFacts, error) {
	ff := &FileFacts{tickers: map[string]TickerFacts{}}
	if path == "" {
		return ff, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ff, nil
		}
		return nil, fmt.Errorf("read facts file: %w", err)
	}
	var doc struct {
		Tickers map[string]TickerFacts `yaml:"tickers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse facts file: %w", err)
	}
	for k, v := range doc.Tickers {
		ff.tickers[strings.ToUpper(k)] = v
	}
	return ff, nil
}

// Facts returns the entry for ticker.
func (f *FileFacts) Facts(ticker string) (TickerFacts, bool) {
	if f == nil {
		return TickerFacts{}, false
	}
	tf, ok := f.tickers[strings.ToUpper(ticker)]
	return tf, ok
}
