package paychan

import (
	"time"

	"github.com/vitwit/paychan/logger"
	"github.com/vitwit/paychan/metrics"
	"github.com/vitwit/paychan/oracle"
	"github.com/vitwit/paychan/store"
)

type Option func(*Client)

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) {
		c.rec = r
	}
}

// WithStore replaces the default file-backed store.
func WithStore(s store.Store) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithOracle replaces the default HTTP balance oracle.
func WithOracle(o oracle.BalanceOracle) Option {
	return func(c *Client) {
		c.oracle = o
	}
}

func WithTimeout(t time.Duration) Option {
	return func(c *Client) {
		c.timeout = t
	}
}
