package msg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorenew/internal/domain"
)

func TestDecodeExecuteVariants(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"increment":{}}`, "increment"},
		{`{"reset":{"count":4}}`, "reset"},
		{`{"renew_domain":{"task_id":7}}`, "renew_domain"},
		{`{"register_domain2":{"desired_name":"a.arch"}}`, "register_domain2"},
		{`{"create_auto_renewal_task":{"frequency":"0 0 * * *","domain_name":"a.arch"}}`, "create_auto_renewal_task"},
		{`{"update_default_id":{"name":"a.arch"}}`, "update_default_id"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			var m ExecuteMsg
			require.NoError(t, Decode([]byte(tt.raw), &m))
			got, err := m.Variant()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsBadUnions(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"increment":{},"reset":{"count":1}}`,
		`{"launch_rockets":{}}`,
		`{"increment":null}`,
		`[1,2]`,
	} {
		var m ExecuteMsg
		err := Decode([]byte(raw), &m)
		assert.ErrorIs(t, err, domain.ErrInvalidMessage, raw)
	}
}

func TestRenewDomainWireShape(t *testing.T) {
	b, err := json.Marshal(ExecuteMsg{RenewDomain: &RenewDomainMsg{TaskID: 0}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"renew_domain":{"task_id":0}}`, string(b))
}

func TestQueryVariant(t *testing.T) {
	var q QueryMsg
	require.NoError(t, Decode([]byte(`{"default_id":{"address":"archway1abc"}}`), &q))
	v, err := q.Variant()
	require.NoError(t, err)
	assert.Equal(t, "default_id", v)
	assert.Equal(t, domain.Addr("archway1abc"), q.DefaultID.Address)
}
