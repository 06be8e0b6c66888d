package llmgateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalValidatedAcceptsMatchingSchema(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"value":{"type":"string"}},"required":["value"]}`)
	var out result
	err := unmarshalValidated([]byte(`{"value":"hi"}`), schema, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Value)
}

func TestUnmarshalValidatedRejectsSchemaMismatch(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"value":{"type":"string"}},"required":["value"]}`)
	var out result
	err := unmarshalValidated([]byte(`{"value":42}`), schema, &out)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestUnmarshalValidatedWithoutSchemaSkipsValidation(t *testing.T) {
	var out result
	err := unmarshalValidated([]byte(`{"value":"hi"}`), nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Value)
}
