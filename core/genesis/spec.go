package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"markertransfer/crypto"
	"markertransfer/native/marker"
)

// GenesisSpec is the bootstrap document of a node: the markers that exist,
// the initial balances, and the contract configuration.
type GenesisSpec struct {
	GenesisTime string                       `json:"genesisTime" yaml:"genesisTime"`
	ChainID     string                       `json:"chainId" yaml:"chainId"`
	Contract    ContractSpec                 `json:"contract" yaml:"contract"`
	Markers     []MarkerSpec                 `json:"markers" yaml:"markers"`
	Alloc       map[string]map[string]string `json:"alloc" yaml:"alloc"` // addr -> denom -> amount

	genesisTimestamp time.Time
}

type ContractSpec struct {
	Name string `json:"name" yaml:"name"`
}

type MarkerSpec struct {
	Denom  string      `json:"denom" yaml:"denom"`
	Type   string      `json:"type" yaml:"type"`
	Grants []GrantSpec `json:"grants,omitempty" yaml:"grants,omitempty"`
}

type GrantSpec struct {
	Address     string   `json:"address" yaml:"address"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// LoadGenesisSpec reads a genesis document. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON. Unknown fields are rejected in
// both forms.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
		}
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Validate checks the document without touching storage.
func (s *GenesisSpec) Validate() error { return s.validate() }

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	if strings.TrimSpace(s.ChainID) == "" {
		return fmt.Errorf("chainId must be provided")
	}
	if strings.TrimSpace(s.Contract.Name) == "" {
		return fmt.Errorf("contract.name must be provided")
	}

	denoms := make(map[string]struct{}, len(s.Markers))
	for i := range s.Markers {
		m := &s.Markers[i]
		if err := marker.ValidateDenom(m.Denom); err != nil {
			return fmt.Errorf("marker[%d]: %w", i, err)
		}
		if _, exists := denoms[m.Denom]; exists {
			return fmt.Errorf("marker[%d]: duplicate denom %q", i, m.Denom)
		}
		denoms[m.Denom] = struct{}{}
		if _, err := marker.ParseType(m.Type); err != nil {
			return fmt.Errorf("marker[%d]: %w", i, err)
		}
		for j, g := range m.Grants {
			if _, err := crypto.ParseAccount(g.Address); err != nil {
				return fmt.Errorf("marker[%d].grants[%d]: %w", i, j, err)
			}
			for _, p := range g.Permissions {
				if !marker.Access(p).Valid() {
					return fmt.Errorf("marker[%d].grants[%d]: unknown permission %q", i, j, p)
				}
			}
		}
	}

	for addr, balances := range s.Alloc {
		if _, err := crypto.ParseAccount(addr); err != nil {
			return fmt.Errorf("alloc[%q]: %w", addr, err)
		}
		for denom, amount := range balances {
			if _, ok := denoms[denom]; !ok {
				return fmt.Errorf("alloc[%q]: unknown denom %q", addr, denom)
			}
			if _, err := parseAmountString(amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addr, denom, err)
			}
		}
	}
	return nil
}

func parseGenesisTime(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime: %w", err)
	}
	return ts.UTC(), nil
}

func parseAmountString(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
