//go:build !linux

package shim

import "github.com/ajaxzhan/mirrorfs/pkg/types"

func statfs(string) (*types.StatFS, error) {
	return nil, types.ErrUnsupported
}
