package localfs

import (
	"xdao.co/crx/storage"
	"xdao.co/crx/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local directory of published containers",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Name: "localfs-dir", Help: "Container store directory"},
		},
		Open: func(opts casregistry.Options) (storage.Store, func() error, error) {
			dir, err := opts.Require("localfs-dir")
			if err != nil {
				return nil, nil, err
			}
			s, err := New(dir)
			if err != nil {
				return nil, nil, err
			}
			return s, nil, nil
		},
	})
}
