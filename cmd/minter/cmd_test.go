package main

import (
	"bytes"
	"fmt"
	"testing"

	. "github.com/alexdcox/cardano-minter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)

	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		_ = flag.Value.Set(flag.DefValue)
		flag.Changed = false
	})
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func testWalletAddress(t *testing.T, network Network) string {
	wallet, err := NewKeyWallet(bytes.Repeat([]byte{5}, 32), network, nil)
	require.NoError(t, err)
	return wallet.Address()
}

func TestPolicyCmd(t *testing.T) {
	address := testWalletAddress(t, NetworkPreProd)

	out, err := execute(t, "policy", "--address", address, "--network", string(NetworkPreProd), "--name", "Cli Token")
	require.NoError(t, err)

	script, err := NewForgeScript(address, NetworkPreProd)
	require.NoError(t, err)
	fingerprint, err := AssetFingerprint(script.PolicyID(), TokenNameHex("Cli Token"))
	require.NoError(t, err)

	assert.Contains(t, out, "address:     "+address)
	assert.Contains(t, out, fmt.Sprintf("key hash:    %x", script.KeyHash))
	assert.Contains(t, out, "policy id:   "+script.PolicyID().String())
	assert.Contains(t, out, fmt.Sprintf("asset:       %s.%s", script.PolicyID(), TokenNameHex("Cli Token")))
	assert.Contains(t, out, "fingerprint: "+fingerprint)
}

func TestPolicyCmd_WithoutName(t *testing.T) {
	out, err := execute(t, "policy", "--address", testWalletAddress(t, NetworkPreProd), "--network", string(NetworkPreProd))
	require.NoError(t, err)
	assert.Contains(t, out, "policy id:")
	assert.NotContains(t, out, "fingerprint:")
}

func TestPolicyCmd_Errors(t *testing.T) {
	_, err := execute(t, "policy", "--network", string(NetworkPreProd))
	assert.ErrorContains(t, err, "one of --address or --key is required")

	_, err = execute(t, "policy", "--address", testWalletAddress(t, NetworkMainNet), "--network", string(NetworkPreProd))
	assert.Error(t, err)
}

func TestKeyDecodeAddressCmd(t *testing.T) {
	address := testWalletAddress(t, NetworkPreProd)

	out, err := execute(t, "key", "decode-address", address)
	require.NoError(t, err)

	decoded, err := DecodeAddress(address, NetworkPreProd)
	require.NoError(t, err)
	keyHash, err := decoded.PaymentKeyHash()
	require.NoError(t, err)

	assert.Contains(t, out, "decoding address:  "+address)
	assert.Contains(t, out, "network:           "+string(NetworkMainNet))
	assert.Contains(t, out, "network:           "+string(NetworkPreProd))
	assert.Contains(t, out, "invalid:")
	assert.Contains(t, out, fmt.Sprintf("addr (8-bit):      %x", decoded.Bytes()))
	assert.Contains(t, out, fmt.Sprintf("payment key hash:  %x", keyHash))
}

func TestKeyDecodeAddressCmd_RequiresAddress(t *testing.T) {
	_, err := execute(t, "key", "decode-address")
	assert.Error(t, err)
}
