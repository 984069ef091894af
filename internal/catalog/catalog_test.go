package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-payment-orders/internal/errors"
)

func TestLookupRegisteredTypes(t *testing.T) {
	cases := map[OperationType]string{
		OpInvoice:       "/factures",
		OpPayroll:       "/paies",
		OpSalaryAdvance: "/avances-salaire",
		OpTax:           "/impots-taxes",
		OpSocialCharge:  "/charges-sociales",
		OpExpenseReport: "/notes-frais",
		OpPerDiem:       "/per-diems",
		OpOther:         "/autres-paiements",
	}
	for op, endpoint := range cases {
		e, err := Lookup(op)
		require.NoError(t, err, op)
		assert.Equal(t, endpoint, e.Endpoint)
		assert.NotEmpty(t, e.Label)
		assert.Equal(t, op == OpInvoice, e.SelectsInvoices())
		assert.Equal(t, op == OpInvoice, e.Schema == "")
	}
	assert.Len(t, All(), len(cases))
}

func TestLookupUnknownType(t *testing.T) {
	_, err := Lookup("virement_interne")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperationType)
	assert.Equal(t, errors.ErrCodeUnknownOperationType, errors.CodeOf(err))
	assert.False(t, Known("virement_interne"))
}

func TestAssociatePathOnlyForSocialCharges(t *testing.T) {
	for _, e := range All() {
		path, ok := e.AssociatePath("12", "34")
		if e.Type == OpSocialCharge {
			require.True(t, ok)
			assert.Equal(t, "/charges-sociales/12/associer-ordre/34", path)
			continue
		}
		assert.False(t, ok, e.Type)
	}
}

func TestAssociatePathEscapesIDs(t *testing.T) {
	e, err := Lookup(OpSocialCharge)
	require.NoError(t, err)
	path, ok := e.AssociatePath("3/../../ordre-paiement", "9?x=1")
	require.True(t, ok)
	assert.Equal(t, "/charges-sociales/3%2F..%2F..%2Fordre-paiement/associer-ordre/9%3Fx=1", path)
}
