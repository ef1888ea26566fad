package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testContractsYAML = `
rpc:
  url: "https://rpc.gnosischain.com"
database:
  driver: sqlite
  dsn: swarmidx.db
contracts:
  - name: postage-stamp-v1
    contract_type: PostageStamp
    address: "0x2222222222222222222222222222222222222222"
    deployment_block: 1000
    active: true
`

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "swarmidx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, testContractsYAML)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	require.Equal(t, "https://rpc.gnosischain.com", cfg.RPC.URL)
	require.Equal(t, uint64(2_000), cfg.Blockchain.ChunkSize)
	require.Len(t, cfg.Contracts, 1)

	addr, ok := cfg.PostageStampAddress()
	require.True(t, ok)
	require.Equal(t, "0x2222222222222222222222222222222222222222", string(addr))
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, testContractsYAML)
	t.Setenv("SWARMIDX__BLOCKCHAIN__CHUNK_SIZE", "500")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(500), cfg.Blockchain.ChunkSize)
}

func TestLoadRejectsMissingRPCURL(t *testing.T) {
	path := writeConfigFile(t, `
database:
  driver: sqlite
  dsn: swarmidx.db
contracts:
  - name: postage-stamp-v1
    contract_type: PostageStamp
    address: "0x2222222222222222222222222222222222222222"
    deployment_block: 1000
    active: true
`)
	_, err := Load(path, nil)
	require.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfigFile(t, `
rpc:
  url: "https://rpc.gnosischain.com"
database:
  driver: mongodb
  dsn: swarmidx.db
contracts:
  - name: postage-stamp-v1
    contract_type: PostageStamp
    address: "0x2222222222222222222222222222222222222222"
    deployment_block: 1000
    active: true
`)
	_, err := Load(path, nil)
	require.Error(t, err)
}

func TestLoadRejectsOverlappingContractWindows(t *testing.T) {
	path := writeConfigFile(t, `
rpc:
  url: "https://rpc.gnosischain.com"
database:
  driver: sqlite
  dsn: swarmidx.db
contracts:
  - name: postage-stamp-v1
    contract_type: PostageStamp
    address: "0x2222222222222222222222222222222222222222"
    deployment_block: 1000
    active: true
  - name: postage-stamp-v2
    contract_type: PostageStamp
    address: "0x3333333333333333333333333333333333333333"
    deployment_block: 1500
    active: true
`)
	_, err := Load(path, nil)
	require.Error(t, err)
}

func TestAddressTrackingConfigParsesMinFundingAmount(t *testing.T) {
	path := writeConfigFile(t, testContractsYAML)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	cfg.AddressTracking.MinFundingAmount = "1000"

	atc, err := cfg.AddressTrackingConfig()
	require.NoError(t, err)
	require.Equal(t, "1000", atc.MinFundingAmount.String())
}
