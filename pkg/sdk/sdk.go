package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	CTJSON string = "application/json"

	statusEndpoint = "/status"
	roundsEndpoint = "/rounds"
	healthEndpoint = "/health"
)

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

// Status mirrors the coordinator's session snapshot.
type Status struct {
	State             string         `json:"state"`
	Round             int            `json:"round"`
	Peers             []string       `json:"peers"`
	Plan              map[string]int `json:"plan,omitempty"`
	History           []string       `json:"history"`
	CommunicationTime float64        `json:"communication_time,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type Round struct {
	Round         int                `json:"round"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
	Plan          map[string]int     `json:"plan"`
	TrainingTimes map[string]float64 `json:"training_times"`
	Contributors  []string           `json:"contributors"`
	Score         float64            `json:"score"`
}

type RoundPage struct {
	Offset uint64  `json:"offset"`
	Limit  uint64  `json:"limit"`
	Total  uint64  `json:"total"`
	Rounds []Round `json:"rounds"`
}

type Health struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	InstanceID string `json:"instance_id"`
}

type SDK interface {
	// Status returns the coordinator's current state.
	//
	// example:
	//  st, _ := sdk.Status()
	//  fmt.Println(st.State, st.Round)
	Status() (Status, error)

	// GetRound gets the report of a finished round.
	//
	// example:
	//  r, _ := sdk.GetRound(2)
	//  fmt.Println(r.Score)
	GetRound(round int) (Round, error)

	// ListRounds lists finished rounds.
	//
	// example:
	//  page, _ := sdk.ListRounds(0, 10)
	//  fmt.Println(page)
	ListRounds(offset uint64, limit uint64) (RoundPage, error)

	Health() (Health, error)
}

type fedSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		coordinatorURL: strings.TrimSuffix(cfg.CoordinatorURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *fedSDK) Status() (Status, error) {
	var st Status
	if err := sdk.get(sdk.coordinatorURL+statusEndpoint, &st); err != nil {
		return Status{}, err
	}

	return st, nil
}

func (sdk *fedSDK) GetRound(round int) (Round, error) {
	var r Round
	url := fmt.Sprintf("%s%s/%d", sdk.coordinatorURL, roundsEndpoint, round)
	if err := sdk.get(url, &r); err != nil {
		return Round{}, err
	}

	return r, nil
}

func (sdk *fedSDK) ListRounds(offset, limit uint64) (RoundPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	url := sdk.coordinatorURL + roundsEndpoint
	if len(queries) > 0 {
		url += "?" + strings.Join(queries, "&")
	}

	var page RoundPage
	if err := sdk.get(url, &page); err != nil {
		return RoundPage{}, err
	}

	return page, nil
}

func (sdk *fedSDK) Health() (Health, error) {
	var h Health
	if err := sdk.get(sdk.coordinatorURL+healthEndpoint, &h); err != nil {
		return Health{}, err
	}

	return h, nil
}

func (sdk *fedSDK) get(url string, v any) error {
	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

func (sdk *fedSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return []byte{}, errors.Join(fmt.Errorf("unexpected response code: %d", resp.StatusCode), errors.New(e.Error))
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
