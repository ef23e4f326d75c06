package state

import "fmt"

// ContractConfig is the configuration recorded at instantiation.
type ContractConfig struct {
	Name string `json:"name"`
}

// ContractVersion identifies the contract type and semantic version that last
// wrote the state.
type ContractVersion struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

// SetContractConfig stores the contract configuration.
func (m *Manager) SetContractConfig(cfg ContractConfig) error {
	return m.KVPut(contractConfigKey, &cfg)
}

// ContractConfig returns the stored configuration and whether it was present.
func (m *Manager) ContractConfig() (*ContractConfig, bool, error) {
	cfg := new(ContractConfig)
	ok, err := m.KVGet(contractConfigKey, cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

// LegacyContractConfig returns configuration written under the length-prefixed
// key used by releases before 0.3.0.
func (m *Manager) LegacyContractConfig() (*ContractConfig, bool, error) {
	cfg := new(ContractConfig)
	ok, err := m.KVGet(legacyConfigKey, cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

// SetLegacyContractConfig writes configuration under the legacy key. Only
// migrations and their tests need it.
func (m *Manager) SetLegacyContractConfig(cfg ContractConfig) error {
	return m.KVPut(legacyConfigKey, &cfg)
}

// DeleteLegacyContractConfig removes the legacy configuration entry.
func (m *Manager) DeleteLegacyContractConfig() error {
	return m.KVDelete(legacyConfigKey)
}

// SetContractVersion records the contract type and version.
func (m *Manager) SetContractVersion(contract, version string) error {
	if contract == "" || version == "" {
		return fmt.Errorf("state: contract version requires name and version")
	}
	return m.KVPut(contractVersionKey, &ContractVersion{Contract: contract, Version: version})
}

// ContractVersion returns the stored contract version and whether it was
// present.
func (m *Manager) ContractVersion() (*ContractVersion, bool, error) {
	v := new(ContractVersion)
	ok, err := m.KVGet(contractVersionKey, v)
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}
