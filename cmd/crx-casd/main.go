package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"

	"xdao.co/crx/crx"
	"xdao.co/crx/storage"
	"xdao.co/crx/storage/casregistry"
	"xdao.co/crx/storage/grpccas"

	_ "xdao.co/crx/storage/localfs"
)

func main() {
	fs := flag.NewFlagSet("crx-casd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "Container store backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	acceptUnverified := fs.Bool("accept-unverified", false, "Store uploads without checking their signatures")
	maxMsgBytes := fs.Int("max-msg-bytes", 64<<20, "Max gRPC message size in bytes")
	verbose := fs.Bool("v", false, "Log every RPC")

	backendOpts := casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "crx-casd", ReportTimestamp: true})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	store, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon, backendOpts)
	if err != nil {
		logger.Error("open backend", "backend", *backend, "err", err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}
	if !*acceptUnverified {
		store = storage.ValidatingStore{Store: store, Validate: crx.Validate}
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("listen", "addr", *listen, "err", err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer(
		grpc.UnaryInterceptor(grpccas.LoggingInterceptor(logger)),
		grpc.MaxRecvMsgSize(*maxMsgBytes),
		grpc.MaxSendMsgSize(*maxMsgBytes),
	)
	grpccas.RegisterContainerStoreServer(s, &grpccas.Server{Store: store})

	logger.Info("listening", "addr", lis.Addr().String(), "backend", *backend, "verify", !*acceptUnverified)
	if err := s.Serve(lis); err != nil {
		logger.Error("serve", "err", err)
		os.Exit(1)
	}
}
