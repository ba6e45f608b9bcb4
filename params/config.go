package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config configures one run of the nightshade-sim simulator: how many
// authorities participate, which consensus instance they run, how many
// outbound gossip messages each authority budgets before giving up,
// and the simulator's operator-facing HTTP surface.
type Config struct {
	// NumAuthorities is N, the fixed authority set size for the run.
	NumAuthorities int
	// BlockIndex is the consensus instance identifier every Gossip must
	// carry to be accepted (§4.6 step 3).
	BlockIndex uint64
	// MessageQuota bounds each authority's outbound gossip count before
	// its task exits (§4.6 step 7).
	MessageQuota int

	// HTTPAddr is the status/event server's listen address; empty
	// disables it.
	HTTPAddr string
	// LogPath, if non-empty, additionally writes structured logs here.
	LogPath string
}

func Default() Config {
	return Config{
		NumAuthorities: 4,
		BlockIndex:     0,
		MessageQuota:   100,
		HTTPAddr:       ":8089",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("NIGHTSHADE_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NumAuthorities = n
		}
	}
	if v := os.Getenv("NIGHTSHADE_BLOCK_INDEX"); v != "" {
		if idx, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.BlockIndex = idx
		}
	}
	if v := os.Getenv("NIGHTSHADE_QUOTA"); v != "" {
		if q, err := strconv.Atoi(v); err == nil && q >= 0 {
			cfg.MessageQuota = q
		}
	}
	if v := os.Getenv("NIGHTSHADE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("NIGHTSHADE_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}

	return cfg
}
