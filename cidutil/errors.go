package cidutil

import "errors"

var errNotContainerCID = errors.New("cidutil: not a CIDv1 raw sha2-256 identifier")
