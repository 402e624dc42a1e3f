package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimContext(body string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/me/claims", strings.NewReader(body))
	return c
}

func TestReadClaimSubmitKeyRestoresBody(t *testing.T) {
	body := `{"invoice_id":" 1234 ","amount":"200.00"}`
	c := claimContext(body)

	key, err := readClaimSubmitKey(c)
	require.NoError(t, err)
	assert.Equal(t, "1234", key)

	rest, err := io.ReadAll(c.Request.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rest))
}

func TestReadClaimSubmitKeyCapsBody(t *testing.T) {
	c := claimContext(`{"invoice_id":"1","notes":"` + strings.Repeat("x", maxClaimBodyBytes) + `"}`)

	_, err := readClaimSubmitKey(c)
	var tooLarge *http.MaxBytesError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(maxClaimBodyBytes), tooLarge.Limit)
}
