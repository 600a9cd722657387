package chanpool

import (
	"time"

	"google.golang.org/grpc"

	"github.com/chanpool-io/chanpool/internal/affinity"
	"github.com/chanpool-io/chanpool/internal/config"
	"github.com/chanpool-io/chanpool/internal/logging"
)

// LoadOptions builds pool Options from a YAML config file and configures
// the global logger from its observability section. Extra dial options
// are appended to every pooled channel.
func LoadOptions(path string, dialOpts ...grpc.DialOption) (Options, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return Options{}, err
	}
	return optionsFromConfig(cfg, dialOpts...)
}

// NewFromConfigFile is LoadOptions followed by New.
func NewFromConfigFile(path string, dialOpts ...grpc.DialOption) (*Pool, error) {
	opts, err := LoadOptions(path, dialOpts...)
	if err != nil {
		return nil, err
	}
	return New(opts)
}

func optionsFromConfig(cfg *config.Config, dialOpts ...grpc.DialOption) (Options, error) {
	logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	opts := Options{
		Target:      cfg.Pool.Target,
		MaxSize:     cfg.Pool.MaxSize,
		DialTimeout: time.Duration(cfg.Pool.DialTimeoutMs) * time.Millisecond,
		DialOptions: dialOpts,
	}
	for _, m := range cfg.Affinity.Methods {
		cmd, err := affinity.ParseCommand(m.Command)
		if err != nil {
			return Options{}, err
		}
		pol := MethodPolicy{Method: config.NormalizeMethod(m.Method), Command: cmd}
		if cmd != CommandNone {
			kp, err := affinity.CompilePath(m.KeyPath)
			if err != nil {
				return Options{}, err
			}
			pol.KeyPath = kp
		}
		opts.Policies = append(opts.Policies, pol)
	}
	return opts, nil
}
