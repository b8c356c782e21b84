package api

import (
	"net/http"

	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/pkg/api"
	"github.com/absmach/splitfed/pkg/fl"
)

var (
	_ api.Response = (*statusResponse)(nil)
	_ api.Response = (*roundResponse)(nil)
	_ api.Response = (*listRoundsResponse)(nil)
	_ api.Response = (*healthResponse)(nil)
)

type statusResponse struct {
	coordinator.Status
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type roundResponse struct {
	fl.RoundReport
}

func (r roundResponse) Code() int {
	return http.StatusOK
}

func (r roundResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundResponse) Empty() bool {
	return false
}

type listRoundsResponse struct {
	coordinator.RoundPage
}

func (l listRoundsResponse) Code() int {
	return http.StatusOK
}

func (l listRoundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRoundsResponse) Empty() bool {
	return false
}

type healthResponse struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	InstanceID string `json:"instance_id"`
}

func (h healthResponse) Code() int {
	return http.StatusOK
}

func (h healthResponse) Headers() map[string]string {
	return map[string]string{}
}

func (h healthResponse) Empty() bool {
	return false
}
