package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("BACKEND_URL", "http://backend:8000/")

	conf := Load()

	assert.Equal(t, "9999", conf.Port)
	assert.Equal(t, "http://backend:8000", conf.BackendURL)
	assert.Equal(t, 10*time.Second, conf.PollInterval)
	assert.Equal(t, "/notifications", conf.NotificationsPath)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("UNREAD_POLL_INTERVAL", "soon")
	t.Setenv("BACKEND_RPS", "-3")
	t.Setenv("API_REQUESTS_PER_MIN", "lots")

	conf := Load()

	assert.Equal(t, 10*time.Second, conf.PollInterval)
	assert.Equal(t, float64(20), conf.BackendRPS)
	assert.Equal(t, 600, conf.APIRequestsPerMin)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}
