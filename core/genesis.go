package core

// GenesisSpec is the on-disk description of a chain's distinguished height-0
// block, loaded from the YAML file named by Config.Node.GenesisFile. It
// mirrors the teacher's practice of describing static, rarely-changed
// cluster facts as YAML read once at startup (cmd/config's default.yaml).
import (
	"encoding/hex"
	"os"

	"gopkg.in/yaml.v3"
)

type GenesisSpec struct {
	MinterWif      string `yaml:"minter_wif"`
	WalletScript   string `yaml:"wallet_script_hex"`
	NetworkTimeUTC int64  `yaml:"network_time_unix"`
}

// LoadGenesisSpec reads and parses a genesis file from path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec GenesisSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// MinterKey decodes the spec's WIF-encoded minting key.
func (g *GenesisSpec) MinterKey() (PrivateKey, error) {
	return WifToPrivateKey(g.MinterWif)
}

// Script returns the wallet script named by the spec, defaulting to a
// single-signature script over the minter's own public key when the spec
// does not name one explicitly.
func (g *GenesisSpec) Script(minter PrivateKey) ([]byte, error) {
	if g.WalletScript == "" {
		return BuildSingleSigScript(minter.Public()), nil
	}
	return hex.DecodeString(g.WalletScript)
}

// WriteGenesisSpec serializes spec to path, overwriting any existing file.
func WriteGenesisSpec(path string, spec *GenesisSpec) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
