package handler

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "reconciler/pkg/domain-errors"
)

func TestPhoneNumberUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    PhoneNumber
		wantErr bool
	}{
		{name: "string", body: `{"phoneNumber":"+1 555"}`, want: "+1 555"},
		{name: "integer", body: `{"phoneNumber":123456}`, want: "123456"},
		{name: "null", body: `{"phoneNumber":null}`, want: ""},
		{name: "absent", body: `{}`, want: ""},
		{name: "float", body: `{"phoneNumber":12.5}`, wantErr: true},
		{name: "negative", body: `{"phoneNumber":-12}`, wantErr: true},
		{name: "boolean", body: `{"phoneNumber":true}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req IdentifyRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.PhoneNumber)
		})
	}
}

func TestIdentifyRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     IdentifyRequest
		wantMsg string
	}{
		{name: "email only", req: IdentifyRequest{Email: "doc@brown.com"}},
		{name: "phone only", req: IdentifyRequest{PhoneNumber: "717171"}},
		{name: "both", req: IdentifyRequest{Email: "doc@brown.com", PhoneNumber: "717171"}},
		{name: "neither", req: IdentifyRequest{}, wantMsg: "either email or phoneNumber must be provided"},
		{name: "blank values", req: IdentifyRequest{Email: " ", PhoneNumber: "\t"}, wantMsg: "either email or phoneNumber must be provided"},
		{name: "malformed email", req: IdentifyRequest{Email: "not-an-email"}, wantMsg: "email must be a valid email address"},
		{name: "long phone", req: IdentifyRequest{PhoneNumber: PhoneNumber(strings.Repeat("9", 33))}, wantMsg: "phoneNumber must be at most 32 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.wantMsg, dErrors.Message(err))
		})
	}
}

func TestIdentifyRequestObservation(t *testing.T) {
	req := IdentifyRequest{Email: "  ", PhoneNumber: "123"}
	require.NoError(t, req.Validate())
	obs := req.Observation()
	assert.Empty(t, obs.Email)
	assert.Equal(t, "123", obs.Phone)
}
