package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Mock implementations
type mockSession struct {
	combinedOutputFunc func(cmd string) ([]byte, error)
	closeFunc          func() error
}

func (m *mockSession) CombinedOutput(cmd string) ([]byte, error) {
	if m.combinedOutputFunc != nil {
		return m.combinedOutputFunc(cmd)
	}
	return []byte(""), nil
}

func (m *mockSession) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

type mockClient struct {
	newSessionFunc func() (Session, error)
	closeFunc      func() error
}

func (m *mockClient) NewSession() (Session, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc()
	}
	return &mockSession{}, nil
}

func (m *mockClient) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

type mockClientFactory struct {
	newClientFunc func(network, addr string, config *ssh.ClientConfig) (Client, error)
}

func (m *mockClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (Client, error) {
	if m.newClientFunc != nil {
		return m.newClientFunc(network, addr, config)
	}
	return &mockClient{}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// generateTestKey generates a valid ed25519 key for testing using crypto/ed25519.
func generateTestKey(t *testing.T) []byte {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return pem.EncodeToMemory(pemBlock)
}

func testConfig(t *testing.T) models.SSHConfig {
	return models.SSHConfig{
		Host:       "192.168.1.50",
		Port:       22,
		Username:   "dayz",
		PrivateKey: generateTestKey(t),
		Unit:       "dayz-server",
	}
}

func outputFactory(fn func(cmd string) ([]byte, error)) *mockClientFactory {
	return &mockClientFactory{
		newClientFunc: func(_, _ string, _ *ssh.ClientConfig) (Client, error) {
			return &mockClient{
				newSessionFunc: func() (Session, error) {
					return &mockSession{combinedOutputFunc: fn}, nil
				},
			}, nil
		},
	}
}

func TestRun_Success(t *testing.T) {
	var capturedCommand, capturedAddr string
	factory := outputFactory(func(cmd string) ([]byte, error) {
		capturedCommand = cmd
		return []byte("active\n"), nil
	})
	inner := factory.newClientFunc
	factory.newClientFunc = func(network, addr string, config *ssh.ClientConfig) (Client, error) {
		capturedAddr = addr
		assert.Equal(t, "dayz", config.User)
		return inner(network, addr, config)
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Run(context.Background(), testConfig(t), "systemctl is-active dayz-server")

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Equal(t, "active\n", result.Output)
	assert.Nil(t, result.Error)
	assert.Equal(t, "systemctl is-active dayz-server", capturedCommand)
	assert.Equal(t, "192.168.1.50:22", capturedAddr)
}

func TestRun_CommandFailed(t *testing.T) {
	factory := outputFactory(func(string) ([]byte, error) {
		return []byte("inactive\n"), errors.New("exit status 3")
	})

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Run(context.Background(), testConfig(t), "systemctl is-active dayz-server")

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Equal(t, "inactive\n", result.Output)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "exit status 3")
}

func TestRun_ConnectionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(_, _ string, _ *ssh.ClientConfig) (Client, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Run(context.Background(), testConfig(t), "true")

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to connect")
}

func TestRun_SessionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(_, _ string, _ *ssh.ClientConfig) (Client, error) {
			return &mockClient{
				newSessionFunc: func() (Session, error) {
					return nil, errors.New("session creation failed")
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Run(context.Background(), testConfig(t), "true")

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to create session")
}

func TestRun_NoPrivateKey(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})
	cfg := models.SSHConfig{Host: "192.168.1.50", Port: 22, Username: "dayz"}

	result, err := svc.Run(context.Background(), cfg, "true")

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "no private key")
}

func TestRun_InvalidPrivateKey(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})
	cfg := models.SSHConfig{Host: "192.168.1.50", Port: 22, Username: "dayz", PrivateKey: []byte("invalid key")}

	result, err := svc.Run(context.Background(), cfg, "true")

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to parse private key")
}

func TestRun_ContextCancelled(t *testing.T) {
	closed := make(chan struct{})
	factory := &mockClientFactory{
		newClientFunc: func(_, _ string, _ *ssh.ClientConfig) (Client, error) {
			// Simulate slow connection
			time.Sleep(100 * time.Millisecond)
			return &mockClient{closeFunc: func() error { close(closed); return nil }}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result, err := svc.Run(ctx, testConfig(t), "true")

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.Equal(t, context.DeadlineExceeded, result.Error)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("late connection was not closed")
	}
}

func TestTestConnection_Success(t *testing.T) {
	factory := outputFactory(func(cmd string) ([]byte, error) {
		if cmd == "echo OK" {
			return []byte("OK\n"), nil
		}
		return nil, errors.New("unexpected command")
	})

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.TestConnection(context.Background(), testConfig(t))

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "OK")
	assert.Nil(t, result.Error)
}

func TestTestConnection_CommandFailed(t *testing.T) {
	factory := outputFactory(func(string) ([]byte, error) {
		return nil, errors.New("exit status 127")
	})

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.TestConnection(context.Background(), testConfig(t))

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "test command failed")
}

func TestBuildConfig_WithKeyPath(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, generateTestKey(t), 0o600))

	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})
	cfg := models.SSHConfig{Host: "192.168.1.50", Port: 22, Username: "root", KeyPath: keyPath}

	sshConfig, err := svc.buildConfig(cfg)

	require.NoError(t, err)
	assert.Equal(t, "root", sshConfig.User)
}

func TestBuildConfig_KeyPathNotFound(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})
	cfg := models.SSHConfig{Host: "192.168.1.50", Port: 22, Username: "root", KeyPath: "/nonexistent/path/id_rsa"}

	_, err := svc.buildConfig(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read private key")
}
