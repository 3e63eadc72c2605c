package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
)

type fakeContainer struct {
	testcontainers.Container
	ports map[nat.Port]nat.Port
}

func (f fakeContainer) Host(context.Context) (string, error) {
	return "127.0.0.1", nil
}

func (f fakeContainer) MappedPort(_ context.Context, port nat.Port) (nat.Port, error) {
	mapped, ok := f.ports[port]
	if !ok {
		return "", errors.New("port not exposed")
	}
	return mapped, nil
}

func TestEndpoint_ResolvesMappedPort(t *testing.T) {
	c := fakeContainer{ports: map[nat.Port]nat.Port{"5432/tcp": "49153/tcp"}}

	host, port := endpoint(context.Background(), t, c, "5432/tcp")
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, "49153", port)
}
