package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaultsAndShortFlags(t *testing.T) {
	cfg, err := Parse([]string{"-b", "mybucket", "-m", "/mnt/objectfs", "-c", "/etc/objectfs/creds"})
	require.NoError(t, err)

	require.Equal(t, "mybucket", cfg.Bucket)
	require.Equal(t, "/mnt/objectfs", cfg.Mount)
	require.Equal(t, "/etc/objectfs/creds", cfg.Credentials)
	require.Equal(t, "INFO", cfg.LogLevel)
	require.Equal(t, 3, cfg.Retries)
	require.Equal(t, 512, cfg.MaxCache)
	require.Equal(t, 8, cfg.NumTransfer)
}

func TestParseDistinguishesSingleAndSingleCapFlags(t *testing.T) {
	cfg, err := Parse([]string{"-b", "b", "-m", "/m", "-c", "/c", "-s", "-S"})
	require.NoError(t, err)
	require.True(t, cfg.Single)
	require.True(t, cfg.SingleCap)
}

func TestValidateRequiresBucketMountCredentials(t *testing.T) {
	cfg := &CLIConfig{}
	require.Error(t, cfg.Validate())

	cfg = &CLIConfig{Bucket: "b", Mount: "/m", Credentials: "/c"}
	require.NoError(t, cfg.Validate())
}

func TestValidateSkipsRequiredFieldsForHelpAndVersion(t *testing.T) {
	require.NoError(t, (&CLIConfig{Help: true}).Validate())
	require.NoError(t, (&CLIConfig{Version: true}).Validate())
}

func TestDriveConfigConvertsUnits(t *testing.T) {
	cfg := &CLIConfig{
		MaxCache:    64,
		MaxStat:     10,
		StatExpire:  5,
		NumTransfer: 4,
		BufSize:     16,
		Retries:     5,
		ReqTimeout:  1000,
	}
	dc := cfg.DriveConfig(1000, 1000, 0o755)

	require.EqualValues(t, 64<<20, dc.CacheCapacity)
	require.Equal(t, 10000, dc.MetaMaxEntries)
	require.Equal(t, 5*60_000_000_000, int(dc.MetaTTL))
	require.Equal(t, 4, dc.WorkerPoolSize)
	require.EqualValues(t, 16<<20, dc.Transfer.BufferSize)
	require.Equal(t, 5, dc.Transfer.Retry.MaxAttempts)
	require.Equal(t, uint32(1000), dc.DefaultUID)
}

func TestDriveConfigDisablesMetaTTLWhenStatExpireNegative(t *testing.T) {
	cfg := &CLIConfig{StatExpire: -1}
	dc := cfg.DriveConfig(0, 0, 0)
	require.Zero(t, dc.MetaTTL)
}
