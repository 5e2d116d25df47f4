package redis

import (
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
)

func TestNewClientWithoutAddrIsDisabled(t *testing.T) {
	client, err := NewClient(config.RedisConfig{PoolSize: 1})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("NewClient() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("expected a nil client when redis is disabled")
	}
}
