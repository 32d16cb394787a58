package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadContractsSyncDefaults(t *testing.T) {
	payload, err := DecodePayload(TypeContractsSync, nil)
	require.NoError(t, err)

	p, ok := payload.(ContractsSyncPayload)
	require.True(t, ok)
	require.Len(t, p.Specs, 1)
	assert.Equal(t, "CL", p.Specs[0].Symbol)
	assert.Equal(t, "NYMEX", p.Specs[0].Exchange)
}

func TestDecodePayloadContractsSyncRequiresExchange(t *testing.T) {
	_, err := DecodePayload(TypeContractsSync, []byte(`{"specs":[{"symbol":"NG","sec_type":"FUT"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no exchange specified for NG FUT")

	// Stocks route through SMART and need no explicit exchange.
	_, err = DecodePayload(TypeContractsSync, []byte(`{"specs":[{"symbol":"XOM","sec_type":"STK"}]}`))
	assert.NoError(t, err)
}

func TestDecodePayloadPretradeCheck(t *testing.T) {
	payload, err := DecodePayload(TypePretradeCheck,
		[]byte(`{"con_id":217001,"side":"buy","quantity":2,"account_id":1}`))
	require.NoError(t, err)

	p, ok := payload.(PretradeCheckPayload)
	require.True(t, ok)
	assert.Equal(t, "BUY", p.Side)

	for _, raw := range []string{
		`{"side":"BUY","quantity":1,"account_id":1}`,
		`{"con_id":1,"side":"HOLD","quantity":1,"account_id":1}`,
		`{"con_id":1,"side":"BUY","quantity":0,"account_id":1}`,
		`{"con_id":1,"side":"BUY","quantity":1}`,
	} {
		_, err := DecodePayload(TypePretradeCheck, []byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestDecodePayloadUnsupportedType(t *testing.T) {
	_, err := DecodePayload("invoices.sync", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported job_type")
}
