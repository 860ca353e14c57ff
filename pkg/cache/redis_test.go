package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/campus-complaints-api/pkg/config"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "complaints:settings:prediction_threshold", Key("settings", "prediction_threshold"))
	assert.Equal(t, "complaints:gen:review", GenerationKey("review"))
	assert.Equal(t, "review:v3:1:20", ScopedKey("review", 3, "1", "20"))
}

func TestOptions(t *testing.T) {
	opts := options(config.RedisConfig{Host: "cache.internal", Port: 6380, DB: 2, PoolSize: 8, ReadTimeout: time.Second})
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 8, opts.PoolSize)
	assert.Equal(t, time.Second, opts.ReadTimeout)
}
