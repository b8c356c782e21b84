package api

import (
	"github.com/absmach/splitfed/pkg/api"
)

type roundReq struct {
	round int
}

func (r *roundReq) validate() error {
	if r.round < 0 {
		return api.ErrInvalidQueryParam
	}

	return nil
}

type listRoundsReq struct {
	offset, limit uint64
}

func (r *listRoundsReq) validate() error {
	if r.limit > api.MaxLimitSize {
		return api.ErrLimitSize
	}

	return nil
}
