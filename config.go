package splitfed

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/model"
	"github.com/absmach/splitfed/pkg/transport"
	"github.com/absmach/splitfed/pkg/transport/broker"
	"github.com/pelletier/go-toml"
)

const (
	BackendMQTT  = "mqtt"
	BackendRedis = "redis"
)

// ClusterConfig describes one training session. It is read once at start
// and never modified afterwards.
type ClusterConfig struct {
	Cluster  ClusterSection  `toml:"cluster"`
	Training TrainingSection `toml:"training"`
	Broker   BrokerSection   `toml:"broker"`
	Peers    []PeerConfig    `toml:"peers"`
}

type ClusterSection struct {
	Name      string `toml:"name"`
	Transport string `toml:"transport"`
	// Address is where the coordinator listens and where peers connect.
	Address string `toml:"address"`
	// WaitTimeoutMS bounds every receive. Zero waits forever.
	WaitTimeoutMS int64 `toml:"wait_timeout_ms"`
	// RegistrationTimeoutMS bounds peer registration. Zero waits forever.
	RegistrationTimeoutMS int64 `toml:"registration_timeout_ms"`
	DatagramStrict        bool  `toml:"datagram_strict"`
}

type TrainingSection struct {
	Rounds       int     `toml:"rounds"`
	LearningRate float64 `toml:"learning_rate"`
	BatchSize    int     `toml:"batch_size"`
	// TotalSamples is N, the data length summed over all peers.
	TotalSamples int    `toml:"total_samples"`
	ModelName    string `toml:"model_name"`
	ModelLen     int    `toml:"model_len"`
	// Features and Seed parametrise the built-in linear model. Every peer
	// of a cluster must use the same values.
	Features int    `toml:"features"`
	Seed     uint64 `toml:"seed"`
}

type BrokerSection struct {
	Backend          string `toml:"backend"`
	URL              string `toml:"url"`
	Username         string `toml:"username"`
	Password         string `toml:"password"`
	QoS              int    `toml:"qos"`
	CoordinatorTopic string `toml:"coordinator_topic"`
	PeerTopic        string `toml:"peer_topic"`
}

type PeerConfig struct {
	ID string `toml:"id"`
	// DataLen is the peer's sample count. Zero means an equal share of
	// TotalSamples.
	DataLen    int `toml:"data_len"`
	SplitLayer int `toml:"split_layer"`
}

// DefaultConfig mirrors a four-peer deployment with full local training.
func DefaultConfig() ClusterConfig {
	cfg := ClusterConfig{
		Cluster: ClusterSection{
			Name:      "splitfed",
			Transport: transport.Stream,
			Address:   "127.0.0.1:51000",
		},
		Training: TrainingSection{
			Rounds:       5,
			LearningRate: 0.01,
			BatchSize:    100,
			TotalSamples: 50000,
			ModelName:    "VGG8",
			ModelLen:     10,
			Features:     8,
			Seed:         1,
		},
		Broker: BrokerSection{
			Backend:          BackendMQTT,
			URL:              "tcp://localhost:1883",
			QoS:              1,
			CoordinatorTopic: broker.DefaultCoordinatorTopic,
			PeerTopic:        broker.DefaultPeerTopic,
		},
	}
	for i := range 4 {
		cfg.Peers = append(cfg.Peers, PeerConfig{ID: fmt.Sprintf("peer-%d", i+1), SplitLayer: 9})
	}

	return cfg
}

func LoadConfig(path string) (*ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Peers = nil
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes cfg as TOML.
func (c ClusterConfig) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func (c ClusterConfig) Validate() error {
	if !transport.Valid(c.Cluster.Transport) {
		return fmt.Errorf("unsupported transport %q", c.Cluster.Transport)
	}
	if c.Cluster.Transport != transport.Broker && c.Cluster.Address == "" {
		return errors.New("cluster.address is required")
	}
	if c.Cluster.WaitTimeoutMS < 0 || c.Cluster.RegistrationTimeoutMS < 0 {
		return errors.New("cluster timeouts must not be negative")
	}
	if c.Training.Rounds < 1 {
		return errors.New("training.rounds must be at least 1")
	}
	if c.Training.TotalSamples <= 0 {
		return errors.New("training.total_samples must be positive")
	}
	if c.Training.ModelLen < 1 {
		return errors.New("training.model_len must be positive")
	}
	if c.Training.Features < 1 {
		return errors.New("training.features must be positive")
	}
	if c.Training.BatchSize < 1 {
		return errors.New("training.batch_size must be positive")
	}
	if len(c.Peers) == 0 {
		return errors.New("at least one peer is required")
	}

	seen := make(map[string]struct{}, len(c.Peers))
	sized, total := 0, 0
	for _, p := range c.Peers {
		if p.ID == "" {
			return errors.New("peer id is required")
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("duplicate peer id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.DataLen < 0 {
			return fmt.Errorf("peer %q: data_len must not be negative", p.ID)
		}
		if err := model.ValidateSplit(p.SplitLayer, c.Training.ModelLen); err != nil {
			return fmt.Errorf("peer %q: %w", p.ID, err)
		}
		if p.DataLen > 0 {
			sized++
			total += p.DataLen
		}
	}

	// Aggregation weights must sum to N, so data_len is all or nothing.
	switch {
	case sized > 0 && sized < len(c.Peers):
		return errors.New("data_len must be set for every peer or for none")
	case sized > 0 && total != c.Training.TotalSamples:
		return fmt.Errorf("peer data_len sums to %d, training.total_samples is %d", total, c.Training.TotalSamples)
	}

	if c.Cluster.Transport == transport.Broker {
		return c.Broker.validate()
	}

	return nil
}

func (b BrokerSection) validate() error {
	switch b.Backend {
	case BackendMQTT, BackendRedis:
	default:
		return fmt.Errorf("unsupported broker backend %q", b.Backend)
	}
	if b.URL == "" {
		return errors.New("broker.url is required")
	}
	if _, err := url.Parse(b.URL); err != nil {
		return fmt.Errorf("broker.url is not a valid URL: %w", err)
	}
	if b.CoordinatorTopic == "" || b.PeerTopic == "" {
		return errors.New("broker topics are required")
	}
	if b.CoordinatorTopic == b.PeerTopic {
		return errors.New("broker topics must differ")
	}
	if b.QoS < 0 || b.QoS > 2 {
		return errors.New("broker.qos must be 0, 1 or 2")
	}

	return nil
}

// K is the number of peers.
func (c ClusterConfig) K() int {
	return len(c.Peers)
}

// PeerIDs returns the configured peer identities in configuration order.
func (c ClusterConfig) PeerIDs() []string {
	ids := make([]string, len(c.Peers))
	for i, p := range c.Peers {
		ids[i] = p.ID
	}

	return ids
}

func (c ClusterConfig) Peer(id string) (PeerConfig, bool) {
	i := slices.IndexFunc(c.Peers, func(p PeerConfig) bool { return p.ID == id })
	if i < 0 {
		return PeerConfig{}, false
	}

	return c.Peers[i], true
}

// Plan returns the configured split layer of every peer.
func (c ClusterConfig) Plan() message.SplitPlan {
	plan := make(message.SplitPlan, len(c.Peers))
	for _, p := range c.Peers {
		plan[p.ID] = p.SplitLayer
	}

	return plan
}

// Weight is the aggregation weight of a peer: its DataLen, or N/K when
// DataLen is unset.
func (c ClusterConfig) Weight(id string) float64 {
	if p, ok := c.Peer(id); ok && p.DataLen > 0 {
		return float64(p.DataLen)
	}
	if c.K() == 0 {
		return 0
	}

	return float64(c.Training.TotalSamples) / float64(c.K())
}

func (c ClusterConfig) WaitTimeout() time.Duration {
	return time.Duration(c.Cluster.WaitTimeoutMS) * time.Millisecond
}

func (c ClusterConfig) RegistrationTimeout() time.Duration {
	return time.Duration(c.Cluster.RegistrationTimeoutMS) * time.Millisecond
}
