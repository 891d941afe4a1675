package mempool

import "github.com/ethereum/go-ethereum/log"

// Options bounds the capacity of a Pool. It is fixed at construction.
type Options struct {
	MaxCount     int    // maximum number of resident transactions
	MaxPerSender int    // maximum number of resident transactions per sender
	MaxMemUsage  uint64 // memory budget in bytes, see Transaction.MemUsage
}

// DefaultOptions contains the default capacity limits.
var DefaultOptions = Options{
	MaxCount:     1024,
	MaxPerSender: 16,
	MaxMemUsage:  8 * 1024 * 1024,
}

// sanitize replaces unset or invalid limits with the defaults.
func (o Options) sanitize() Options {
	conf := o
	if conf.MaxCount <= 0 {
		log.Warn("Sanitizing invalid pool max count", "provided", conf.MaxCount, "updated", DefaultOptions.MaxCount)
		conf.MaxCount = DefaultOptions.MaxCount
	}
	if conf.MaxPerSender <= 0 {
		log.Warn("Sanitizing invalid pool per-sender limit", "provided", conf.MaxPerSender, "updated", DefaultOptions.MaxPerSender)
		conf.MaxPerSender = DefaultOptions.MaxPerSender
	}
	if conf.MaxMemUsage == 0 {
		log.Warn("Sanitizing invalid pool memory budget", "provided", conf.MaxMemUsage, "updated", DefaultOptions.MaxMemUsage)
		conf.MaxMemUsage = DefaultOptions.MaxMemUsage
	}
	return conf
}
