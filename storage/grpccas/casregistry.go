package grpccas

import (
	"xdao.co/crx/storage"
	"xdao.co/crx/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "Remote container store over gRPC (e.g. crx-casd)",
		Usage:       casregistry.UsageCLI,
		Options: []casregistry.Option{
			{Name: "grpc-target", Help: "gRPC target host:port"},
			{Name: "grpc-dial-timeout", Default: "5s", Help: "Dial timeout"},
			{Name: "grpc-timeout", Help: "Per-RPC timeout"},
			{Name: "grpc-max-msg-bytes", Help: "Max gRPC message size in bytes (send+recv); empty uses grpc defaults"},
		},
		Open: open,
	})
}

func open(opts casregistry.Options) (storage.Store, func() error, error) {
	target, err := opts.Require("grpc-target")
	if err != nil {
		return nil, nil, err
	}
	dialTimeout, err := opts.Duration("grpc-dial-timeout")
	if err != nil {
		return nil, nil, err
	}
	timeout, err := opts.Duration("grpc-timeout")
	if err != nil {
		return nil, nil, err
	}
	maxMsg, err := opts.Int("grpc-max-msg-bytes")
	if err != nil {
		return nil, nil, err
	}
	client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = timeout
	return client, client.Close, nil
}
