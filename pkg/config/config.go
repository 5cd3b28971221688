package config

// Package config provides a reusable loader for grael node configuration
// files and environment variables. It is versioned so that applications
// can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"grael/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a grael node. It mirrors
// the structure of the YAML files under cmd/config.
type Config struct {
	Node struct {
		DataDir     string `mapstructure:"data_dir" json:"data_dir"`
		GenesisFile string `mapstructure:"genesis_file" json:"genesis_file"`
		MinterWif   string `mapstructure:"minter_wif" json:"minter_wif"`
		IsLeader    bool   `mapstructure:"is_leader" json:"is_leader"`
	} `mapstructure:"node" json:"node"`

	Replication struct {
		PeerID     string   `mapstructure:"peer_id" json:"peer_id"`
		ListenAddr string   `mapstructure:"listen_addr" json:"listen_addr"`
		Peers      []string `mapstructure:"peers" json:"peers"`
	} `mapstructure:"replication" json:"replication"`

	Rpc struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
		StatusAddr string `mapstructure:"status_addr" json:"status_addr"`
	} `mapstructure:"rpc" json:"rpc"`

	Ledger struct {
		BlockLogPath      string `mapstructure:"block_log_path" json:"block_log_path"`
		BlockRewardWhole  int64  `mapstructure:"block_reward_whole" json:"block_reward_whole"`
		TxExpirySeconds   int    `mapstructure:"tx_expiry_seconds" json:"tx_expiry_seconds"`
	} `mapstructure:"ledger" json:"ledger"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the GRAEL_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("GRAEL_ENV", ""))
}
